package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jogardn/storefront-gateway/pkg/models"
	"github.com/sirupsen/logrus"
)

// ServiceError is a rejection from the inventory service carrying the
// human-readable message from the response body.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("inventory service returned error status: %d", e.StatusCode)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// FetchProducts returns the orderable catalog. Transport failures are
// wrapped errors; service rejections come back as *ServiceError.
func (c *Client) FetchProducts(filter models.ProductFilter) ([]models.Product, error) {
	query := url.Values{}
	query.Set("only_available", strconv.FormatBool(filter.OnlyAvailable))
	if filter.DistributorID != "" {
		query.Set("distributor_id", filter.DistributorID)
	}

	req, err := http.NewRequest("GET", c.baseURL+"/products?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to inventory service: %w", err)
	}
	defer resp.Body.Close()

	var response models.ProductListResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode inventory service response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: response.Message}
	}

	c.logger.WithFields(logrus.Fields{
		"count":          len(response.Products),
		"distributor_id": filter.DistributorID,
		"only_available": filter.OnlyAvailable,
	}).Info("Retrieved products from inventory service")

	return response.Products, nil
}

// CreateOrder submits a derived order request. Any rejection, whether a
// validation failure or a server error, surfaces as *ServiceError so the
// caller always has a displayable message.
func (c *Client) CreateOrder(order *models.OrderRequest) (*models.OrderResult, error) {
	c.logger.WithFields(logrus.Fields{
		"request_id": order.RequestID,
		"product_id": order.ProductID,
		"quantity":   order.Quantity,
	}).Info("Submitting order to inventory service")

	jsonData, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+"/orders", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to inventory service: %w", err)
	}
	defer resp.Body.Close()

	var result models.OrderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode inventory service response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: result.Message}
	}
	if !result.Success {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: result.Message}
	}

	c.logger.WithFields(logrus.Fields{
		"request_id": order.RequestID,
		"order_id":   result.OrderID,
		"status":     resp.StatusCode,
	}).Info("Order accepted by inventory service")

	return &result, nil
}
