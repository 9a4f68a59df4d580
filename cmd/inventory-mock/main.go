package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jogardn/storefront-gateway/pkg/models"
	"github.com/sirupsen/logrus"
)

// In-memory stand-in for the real inventory/order service, for local
// development of the gateway. Keeps insertion order so catalog responses
// are stable.
type ProductStore struct {
	products []*models.Product
	orders   map[string]*models.OrderRequest
	mutex    sync.RWMutex
}

func NewProductStore() *ProductStore {
	return &ProductStore{
		orders: make(map[string]*models.OrderRequest),
	}
}

func (s *ProductStore) Seed() {
	s.products = []*models.Product{
		{
			ID:            "prod-1001",
			DistributorID: "dist-01",
			Name:          "Basmati Rice 25kg",
			Category:      "Grains",
			UnitPrice:     38.50,
			MOQ:           10,
			PaymentModes:  []string{"PREPAID", "COD"},
			LeadTimeDays:  2,
			StockQuantity: 420,
			ServiceAreas:  []string{"north", "central"},
			Enabled:       true,
		},
		{
			ID:            "prod-1002",
			DistributorID: "dist-01",
			Name:          "Sunflower Oil 15L",
			Category:      "Oils",
			UnitPrice:     21.00,
			MOQ:           50,
			PaymentModes:  []string{"COD"},
			LeadTimeDays:  3,
			StockQuantity: 180,
			ServiceAreas:  []string{"central"},
			Enabled:       true,
		},
		{
			ID:            "prod-1003",
			DistributorID: "dist-02",
			Name:          "Wheat Flour 50kg",
			Category:      "Grains",
			UnitPrice:     29.75,
			MOQ:           20,
			PaymentModes:  nil,
			StockQuantity: 96,
			ServiceAreas:  []string{"south"},
			Enabled:       true,
		},
		{
			ID:            "prod-1004",
			DistributorID: "dist-02",
			Name:          "Discontinued Sugar 10kg",
			Category:      "Sweeteners",
			UnitPrice:     12.00,
			MOQ:           25,
			PaymentModes:  []string{"PREPAID"},
			StockQuantity: 0,
			Enabled:       false,
		},
	}
}

func (s *ProductStore) List(distributorID string, onlyAvailable bool) []models.Product {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		if distributorID != "" && p.DistributorID != distributorID {
			continue
		}
		if onlyAvailable && (!p.Enabled || p.StockQuantity <= 0) {
			continue
		}
		result = append(result, *p)
	}
	return result
}

// PlaceOrder validates the request and decrements stock. Returns the
// assigned order id or a rejection message.
func (s *ProductStore) PlaceOrder(req *models.OrderRequest) (string, error) {
	if err := validateOrder(req); err != nil {
		return "", err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, p := range s.products {
		if p.ID != req.ProductID {
			continue
		}
		if !p.Enabled {
			return "", errors.New("Product is no longer available")
		}
		if p.StockQuantity < req.Quantity {
			return "", errors.New("Insufficient stock")
		}

		p.StockQuantity -= req.Quantity

		orderID := "ORD-" + strings.ToUpper(uuid.New().String()[:8])
		s.orders[orderID] = req
		return orderID, nil
	}

	return "", fmt.Errorf("Unknown product: %s", req.ProductID)
}

func validateOrder(req *models.OrderRequest) error {
	required := map[string]string{
		"user_id":          req.UserID,
		"distributor_id":   req.DistributorID,
		"product_id":       req.ProductID,
		"product_name":     req.ProductName,
		"payment_mode":     req.PaymentMode,
		"delivery_address": req.DeliveryAddress,
	}
	for field, value := range required {
		if value == "" {
			return fmt.Errorf("Missing required field: %s", field)
		}
	}
	if req.Quantity <= 0 {
		return errors.New("Quantity must be positive")
	}
	return nil
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	store := NewProductStore()
	store.Seed()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/products", listProducts(logger, store)).Methods("GET")
	router.HandleFunc("/orders", createOrder(logger, store)).Methods("POST")

	port := getEnv("INVENTORY_PORT", "8082")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", port).Info("Starting inventory mock server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down inventory mock server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server forced to shutdown")
	}

	logger.Info("Inventory mock server gracefully stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "inventory-mock",
	})
}

func listProducts(logger *logrus.Logger, store *ProductStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID := r.URL.Query().Get("distributor_id")
		onlyAvailable := r.URL.Query().Get("only_available") == "true"

		products := store.List(distributorID, onlyAvailable)

		logger.WithFields(logrus.Fields{
			"count":          len(products),
			"distributor_id": distributorID,
			"only_available": onlyAvailable,
		}).Info("Listing products")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.ProductListResponse{
			Success:  true,
			Products: products,
			Count:    len(products),
		})
	}
}

func createOrder(logger *logrus.Logger, store *ProductStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.WithError(err).Error("Failed to decode order request")
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		// Simulate upstream processing latency
		delay := time.Duration(rand.Intn(400)+100) * time.Millisecond
		time.Sleep(delay)

		orderID, err := store.PlaceOrder(&req)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"request_id": req.RequestID,
				"product_id": req.ProductID,
				"reason":     err.Error(),
			}).Warn("Order rejected")
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithFields(logrus.Fields{
			"order_id":   orderID,
			"request_id": req.RequestID,
			"product_id": req.ProductID,
			"quantity":   req.Quantity,
		}).Info("Order accepted")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.OrderResult{
			Success: true,
			Message: fmt.Sprintf("Order created with ID: %s", orderID),
			OrderID: orderID,
		})
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.OrderResult{
		Success: false,
		Message: message,
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
