package checkout

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jogardn/storefront-gateway/internal/events"
	"github.com/jogardn/storefront-gateway/internal/inventory"
	"github.com/jogardn/storefront-gateway/internal/notify"
	"github.com/jogardn/storefront-gateway/pkg/models"
	"github.com/sirupsen/logrus"
)

// State tracks one order submission from selection to resolution. The
// machine is cyclic: both terminal outcomes resolve back to Idle.
type State int

const (
	StateIdle State = iota
	StateConfirming
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirming:
		return "confirming"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// FallbackPaymentMode is used when a product lists no payment modes.
	FallbackPaymentMode = "COD"

	// PlaceholderDeliveryAddress stands in for an address-selection step
	// that does not exist yet. Every order ships with this value until the
	// address book feature lands.
	PlaceholderDeliveryAddress = "Registered business address"

	genericFailureMessage = "Order could not be placed, please try again"
)

var (
	ErrNotIdle          = errors.New("an order is already in progress")
	ErrNothingToConfirm = errors.New("no order is awaiting confirmation")
	ErrNothingToAck     = errors.New("no successful order to acknowledge")
	ErrUnknownProduct   = errors.New("product is not in the loaded catalog")
)

// Catalog is the slice of the catalog loader the submitter depends on:
// the current products for selection, and the initial-load path for the
// post-success reload.
type Catalog interface {
	Products() []models.Product
	Load() error
}

// OrderPlacer submits a derived order request to the inventory service.
type OrderPlacer interface {
	CreateOrder(req *models.OrderRequest) (*models.OrderResult, error)
}

// EventPublisher emits an order-placed event after a successful submission.
type EventPublisher interface {
	PublishOrderPlaced(event events.OrderPlacedEvent) error
}

// Summary is what the confirmation step shows the buyer before committing.
type Summary struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	PaymentMode string  `json:"payment_mode"`
}

// Outcome is the transient result of one submission. It is handed to the
// caller and broadcast as a notice; only a successful outcome is held until
// the buyer acknowledges it.
type Outcome struct {
	Succeeded bool   `json:"succeeded"`
	OrderID   string `json:"order_id,omitempty"`
	Message   string `json:"message"`
}

// Submitter runs the confirm-then-commit order flow for a single buyer.
// The buyer identity is mandatory; there is no hidden default.
type Submitter struct {
	buyerID       string
	catalog       Catalog
	placer        OrderPlacer
	notifier      notify.Notifier
	logger        *logrus.Logger
	publisher     EventPublisher
	onStateChange func(from, to State)

	mu      sync.Mutex
	state   State
	pending *models.Product
	outcome *Outcome
}

func NewSubmitter(buyerID string, catalog Catalog, placer OrderPlacer, notifier notify.Notifier, logger *logrus.Logger) (*Submitter, error) {
	if buyerID == "" {
		return nil, errors.New("buyer id is required")
	}

	return &Submitter{
		buyerID:  buyerID,
		catalog:  catalog,
		placer:   placer,
		notifier: notifier,
		logger:   logger,
		state:    StateIdle,
	}, nil
}

// SetEventPublisher wires an optional Kafka publisher. The submitter works
// without one; publish failures never affect the order flow.
func (s *Submitter) SetEventPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// SetStateChangeCallback registers an observer for state transitions.
func (s *Submitter) SetStateChangeCallback(fn func(from, to State)) {
	s.onStateChange = fn
}

// Select captures a product from the current catalog and moves the machine
// to Confirming. The captured copy is what a later Confirm submits, so a
// concurrent catalog refresh cannot change the in-flight request.
func (s *Submitter) Select(productID string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return Summary{}, ErrNotIdle
	}

	var selected *models.Product
	for _, p := range s.catalog.Products() {
		if p.ID == productID {
			product := p
			selected = &product
			break
		}
	}
	if selected == nil {
		return Summary{}, ErrUnknownProduct
	}

	s.pending = selected
	s.setState(StateConfirming)

	s.logger.WithFields(logrus.Fields{
		"product_id": selected.ID,
		"moq":        selected.MOQ,
	}).Info("Order selected, awaiting confirmation")

	return s.summaryLocked(), nil
}

// Cancel abandons a pending confirmation. No request is made, no notice is
// shown.
func (s *Submitter) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirming {
		return ErrNothingToConfirm
	}

	s.pending = nil
	s.setState(StateIdle)
	s.logger.Info("Order confirmation cancelled")
	return nil
}

// Confirm commits the pending selection: it derives the order request and
// makes exactly one create-order call. A rejection resolves straight back to
// Idle; a success parks the machine in Succeeded until Acknowledge.
func (s *Submitter) Confirm() (Outcome, error) {
	s.mu.Lock()
	if s.state != StateConfirming {
		s.mu.Unlock()
		return Outcome{}, ErrNothingToConfirm
	}

	request := s.buildRequest(*s.pending)
	s.setState(StateSubmitting)
	s.mu.Unlock()

	result, err := s.placer.CreateOrder(request)

	s.mu.Lock()
	s.pending = nil

	var outcome Outcome
	if err != nil {
		outcome = Outcome{Succeeded: false, Message: failureMessage(err)}
		s.setState(StateFailed)
		s.setState(StateIdle)
		s.outcome = nil
	} else {
		outcome = Outcome{Succeeded: true, OrderID: result.OrderID, Message: result.Message}
		s.setState(StateSucceeded)
		s.outcome = &outcome
	}
	s.mu.Unlock()

	if !outcome.Succeeded {
		s.logger.WithError(err).WithField("request_id", request.RequestID).Error("Order submission failed")
		s.notifier.Publish(notify.Notice{
			Level:   notify.LevelError,
			Code:    notify.CodeOrderFailed,
			Message: outcome.Message,
		})
		return outcome, nil
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": request.RequestID,
		"order_id":   outcome.OrderID,
	}).Info("Order placed")

	s.notifier.Publish(notify.Notice{
		Level:   notify.LevelInfo,
		Code:    notify.CodeOrderPlaced,
		Message: fmt.Sprintf("Order placed: %s", outcome.OrderID),
		Data:    outcome,
	})

	if s.publisher != nil {
		event := events.OrderPlacedEvent{
			OrderID:       outcome.OrderID,
			RequestID:     request.RequestID,
			BuyerID:       request.UserID,
			DistributorID: request.DistributorID,
			ProductID:     request.ProductID,
			Quantity:      request.Quantity,
			UnitPrice:     request.UnitPrice,
			PaymentMode:   request.PaymentMode,
		}
		if err := s.publisher.PublishOrderPlaced(event); err != nil {
			s.logger.WithError(err).Error("Failed to publish order event")
		}
	}

	return outcome, nil
}

// Acknowledge resolves a successful submission back to Idle and triggers
// exactly one catalog reload, strictly after the acknowledgement. Stock may
// have changed, so the screen re-fetches.
func (s *Submitter) Acknowledge() error {
	s.mu.Lock()
	if s.state != StateSucceeded {
		s.mu.Unlock()
		return ErrNothingToAck
	}

	s.outcome = nil
	s.setState(StateIdle)
	s.mu.Unlock()

	if err := s.catalog.Load(); err != nil {
		// The loader already surfaced its own notice; the ack stands.
		s.logger.WithError(err).Error("Post-order catalog reload failed")
	}
	return nil
}

func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the confirmation summary when the machine is in
// Confirming.
func (s *Submitter) Pending() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirming {
		return Summary{}, false
	}
	return s.summaryLocked(), true
}

// Outcome returns the unacknowledged success, if any.
func (s *Submitter) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

func (s *Submitter) summaryLocked() Summary {
	return Summary{
		ProductID:   s.pending.ID,
		ProductName: s.pending.Name,
		UnitPrice:   s.pending.UnitPrice,
		Quantity:    s.pending.MOQ,
		PaymentMode: paymentModeFor(*s.pending),
	}
}

func (s *Submitter) buildRequest(p models.Product) *models.OrderRequest {
	return &models.OrderRequest{
		RequestID:       uuid.New().String(),
		UserID:          s.buyerID,
		DistributorID:   p.DistributorID,
		ProductID:       p.ID,
		ProductName:     p.Name,
		Quantity:        p.MOQ,
		UnitPrice:       p.UnitPrice,
		PaymentMode:     paymentModeFor(p),
		DeliveryAddress: PlaceholderDeliveryAddress,
	}
}

func (s *Submitter) setState(newState State) {
	if s.state == newState {
		return
	}

	oldState := s.state
	s.state = newState

	s.logger.WithFields(logrus.Fields{
		"from_state": oldState.String(),
		"to_state":   newState.String(),
	}).Debug("Checkout state changed")

	if s.onStateChange != nil {
		s.onStateChange(oldState, newState)
	}
}

func paymentModeFor(p models.Product) string {
	if len(p.PaymentModes) == 0 {
		return FallbackPaymentMode
	}
	return p.PaymentModes[0]
}

// failureMessage prefers the inventory service's own wording; anything else
// (transport failures, decode errors) gets the generic fallback.
func failureMessage(err error) string {
	var serviceErr *inventory.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Message != "" {
		return serviceErr.Message
	}
	return genericFailureMessage
}
