package models

// Product is a purchasable item as the inventory service reports it.
// Products in a catalog response are already filtered to enabled items
// with stock; the gateway does not re-validate either field.
type Product struct {
	ID            string   `json:"id"`
	DistributorID string   `json:"distributor_id"`
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	UnitPrice     float64  `json:"unit_price"`
	MOQ           int      `json:"moq"`
	PaymentModes  []string `json:"payment_modes"`
	LeadTimeDays  int      `json:"lead_time_days,omitempty"`
	StockQuantity int      `json:"stock_quantity"`
	ServiceAreas  []string `json:"service_areas,omitempty"`
	Enabled       bool     `json:"enabled"`
}

// ProductFilter narrows a catalog fetch. An empty DistributorID means
// all distributors.
type ProductFilter struct {
	DistributorID string
	OnlyAvailable bool
}

// OrderRequest is derived from a Product at submission time and discarded
// once the inventory service answers. It is never stored.
type OrderRequest struct {
	RequestID       string  `json:"request_id"`
	UserID          string  `json:"user_id"`
	DistributorID   string  `json:"distributor_id"`
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	PaymentMode     string  `json:"payment_mode"`
	DeliveryAddress string  `json:"delivery_address"`
}

// OrderResult is the inventory service's answer to an order submission.
type OrderResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// ProductListResponse is the envelope the inventory service wraps catalog
// responses in.
type ProductListResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Products []Product `json:"products"`
	Count    int       `json:"count"`
}
