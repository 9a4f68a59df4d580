package storefront

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/storefront-gateway/internal/catalog"
	"github.com/jogardn/storefront-gateway/internal/checkout"
	"github.com/sirupsen/logrus"
)

// Handler maps the screen's interaction events onto the catalog loader and
// the checkout submitter.
type Handler struct {
	loader    *catalog.Loader
	submitter *checkout.Submitter
	logger    *logrus.Logger
}

func NewHandler(loader *catalog.Loader, submitter *checkout.Submitter, logger *logrus.Logger) *Handler {
	return &Handler{
		loader:    loader,
		submitter: submitter,
		logger:    logger,
	}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET", "OPTIONS")
	router.HandleFunc("/catalog", h.GetCatalog).Methods("GET", "OPTIONS")
	router.HandleFunc("/catalog/refresh", h.RefreshCatalog).Methods("POST", "OPTIONS")
	router.HandleFunc("/checkout", h.GetCheckout).Methods("GET", "OPTIONS")
	router.HandleFunc("/checkout/select", h.SelectProduct).Methods("POST", "OPTIONS")
	router.HandleFunc("/checkout/confirm", h.ConfirmOrder).Methods("POST", "OPTIONS")
	router.HandleFunc("/checkout/cancel", h.CancelOrder).Methods("POST", "OPTIONS")
	router.HandleFunc("/checkout/ack", h.AcknowledgeOrder).Methods("POST", "OPTIONS")
}

func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.loader.Snapshot())
}

// RefreshCatalog is the pull-to-refresh path. A failed refresh keeps the
// prior products; the snapshot returned reflects that.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.loader.Refresh(); err != nil {
		if errors.Is(err, catalog.ErrLoadInFlight) {
			h.respondWithError(w, http.StatusConflict, "A catalog fetch is already in progress")
			return
		}
		h.logger.WithError(err).Error("Catalog refresh failed")
	}
	h.respondWithJSON(w, http.StatusOK, h.loader.Snapshot())
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"state": h.submitter.State().String(),
	}
	if summary, ok := h.submitter.Pending(); ok {
		response["summary"] = summary
	}
	if outcome, ok := h.submitter.Outcome(); ok {
		response["outcome"] = outcome
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *Handler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductID == "" {
		h.respondWithError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	summary, err := h.submitter.Select(body.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrUnknownProduct):
			h.respondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, checkout.ErrNotIdle):
			h.respondWithError(w, http.StatusConflict, err.Error())
		default:
			h.respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"state":   h.submitter.State().String(),
		"summary": summary,
	})
}

func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.submitter.Confirm()
	if err != nil {
		h.respondWithError(w, http.StatusConflict, err.Error())
		return
	}

	if !outcome.Succeeded {
		h.respondWithError(w, http.StatusBadRequest, outcome.Message)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, outcome)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.submitter.Cancel(); err != nil {
		h.respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"state": h.submitter.State().String(),
	})
}

func (h *Handler) AcknowledgeOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.submitter.Acknowledge(); err != nil {
		h.respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"state": h.submitter.State().String(),
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "storefront-gateway",
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
