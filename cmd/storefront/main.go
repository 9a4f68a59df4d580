package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/storefront-gateway/internal/catalog"
	"github.com/jogardn/storefront-gateway/internal/checkout"
	"github.com/jogardn/storefront-gateway/internal/events"
	"github.com/jogardn/storefront-gateway/internal/inventory"
	"github.com/jogardn/storefront-gateway/internal/notify"
	"github.com/jogardn/storefront-gateway/internal/storefront"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	port := getEnv("STOREFRONT_PORT", "8080")
	inventoryURL := getEnv("INVENTORY_SERVICE_URL", "http://localhost:8082")
	distributorID := getEnv("DISTRIBUTOR_ID", "")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "")

	// Every order must carry a caller identity; refusing to start beats
	// silently misattributing orders.
	buyerID := os.Getenv("BUYER_ID")
	if buyerID == "" {
		logger.Fatal("BUYER_ID must be set")
	}

	client := inventory.NewClient(inventoryURL, logger)
	logger.WithField("url", inventoryURL).Info("Inventory service client configured")

	hub := notify.NewHub(logger)
	go hub.Run()

	loader := catalog.NewLoader(client, distributorID, hub, logger)

	submitter, err := checkout.NewSubmitter(buyerID, loader, client, hub, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create order submitter")
	}

	if kafkaBrokers != "" {
		producer, err := events.NewKafkaProducer(kafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		submitter.SetEventPublisher(producer)
		logger.WithField("brokers", kafkaBrokers).Info("Order event publishing enabled")
	} else {
		logger.Info("KAFKA_BROKERS not configured - order events disabled")
	}

	handler := storefront.NewHandler(loader, submitter, logger)

	router := mux.NewRouter()
	handler.Register(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)

	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Initial load runs once on startup; a failure keeps the empty catalog
	// and the buyer can pull-to-refresh.
	go func() {
		if err := loader.Load(); err != nil {
			logger.WithError(err).Error("Initial catalog load failed")
		}
	}()

	go func() {
		logger.WithField("port", port).Info("Starting storefront gateway")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Info("Request received")

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

func corsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
