package checkout

import (
	"errors"
	"strings"
	"testing"

	"github.com/jogardn/storefront-gateway/internal/events"
	"github.com/jogardn/storefront-gateway/internal/inventory"
	"github.com/jogardn/storefront-gateway/internal/notify"
	"github.com/jogardn/storefront-gateway/pkg/models"
	"github.com/sirupsen/logrus"
)

type fakeCatalog struct {
	products  []models.Product
	loadCalls int
	loadErr   error
}

func (f *fakeCatalog) Products() []models.Product {
	products := make([]models.Product, len(f.products))
	copy(products, f.products)
	return products
}

func (f *fakeCatalog) Load() error {
	f.loadCalls++
	return f.loadErr
}

type fakePlacer struct {
	calls   int
	lastReq *models.OrderRequest
	result  *models.OrderResult
	err     error
}

func (f *fakePlacer) CreateOrder(req *models.OrderRequest) (*models.OrderResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingNotifier struct {
	notices []notify.Notice
}

func (r *recordingNotifier) Publish(n notify.Notice) {
	r.notices = append(r.notices, n)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleProducts() []models.Product {
	return []models.Product{
		{
			ID:            "prod-1",
			DistributorID: "dist-1",
			Name:          "Rice 25kg",
			UnitPrice:     38.50,
			MOQ:           10,
			PaymentModes:  []string{"PREPAID", "COD"},
			StockQuantity: 100,
			Enabled:       true,
		},
		{
			ID:            "prod-2",
			DistributorID: "dist-1",
			Name:          "Oil 15L",
			UnitPrice:     21.00,
			MOQ:           50,
			PaymentModes:  nil,
			StockQuantity: 80,
			Enabled:       true,
		},
	}
}

func newTestSubmitter(t *testing.T, cat *fakeCatalog, placer *fakePlacer) (*Submitter, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	s, err := NewSubmitter("buyer-42", cat, placer, notifier, testLogger())
	if err != nil {
		t.Fatalf("NewSubmitter failed: %v", err)
	}
	return s, notifier
}

func TestNewSubmitterRequiresBuyerID(t *testing.T) {
	_, err := NewSubmitter("", &fakeCatalog{}, &fakePlacer{}, &recordingNotifier{}, testLogger())
	if err == nil {
		t.Fatal("Expected error for empty buyer id")
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name        string
		productID   string
		wantErr     error
		wantQty     int
		wantPayment string
	}{
		{
			name:        "known_product_uses_moq",
			productID:   "prod-1",
			wantQty:     10,
			wantPayment: "PREPAID",
		},
		{
			name:        "empty_payment_modes_fall_back",
			productID:   "prod-2",
			wantQty:     50,
			wantPayment: FallbackPaymentMode,
		},
		{
			name:      "unknown_product",
			productID: "prod-404",
			wantErr:   ErrUnknownProduct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, &fakePlacer{})

			summary, err := s.Select(tt.productID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if s.State() != StateIdle {
					t.Errorf("State should stay idle, got %s", s.State())
				}
				return
			}

			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if s.State() != StateConfirming {
				t.Errorf("Expected confirming, got %s", s.State())
			}
			if summary.Quantity != tt.wantQty {
				t.Errorf("Expected quantity %d, got %d", tt.wantQty, summary.Quantity)
			}
			if summary.PaymentMode != tt.wantPayment {
				t.Errorf("Expected payment mode %s, got %s", tt.wantPayment, summary.PaymentMode)
			}
		})
	}
}

func TestSelectWhileNotIdle(t *testing.T) {
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, &fakePlacer{})

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("First select failed: %v", err)
	}
	if _, err := s.Select("prod-2"); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("Expected ErrNotIdle, got %v", err)
	}
}

func TestCancelReturnsToIdleWithoutSubmitting(t *testing.T) {
	placer := &fakePlacer{}
	s, notifier := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, placer)

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
	if placer.calls != 0 {
		t.Errorf("Expected no order calls, got %d", placer.calls)
	}
	if len(notifier.notices) != 0 {
		t.Errorf("Cancel must not publish notices, got %d", len(notifier.notices))
	}

	if err := s.Cancel(); !errors.Is(err, ErrNothingToConfirm) {
		t.Errorf("Expected ErrNothingToConfirm, got %v", err)
	}
}

func TestConfirmBuildsRequestFromCapturedProduct(t *testing.T) {
	cat := &fakeCatalog{products: sampleProducts()}
	placer := &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-1"}}
	s, _ := newTestSubmitter(t, cat, placer)

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	// A refresh between selection and confirmation must not change the
	// in-flight request.
	cat.products = []models.Product{}

	if _, err := s.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	req := placer.lastReq
	if req == nil {
		t.Fatal("Expected an order request")
	}
	if req.UserID != "buyer-42" {
		t.Errorf("Expected user_id buyer-42, got %s", req.UserID)
	}
	if req.DistributorID != "dist-1" {
		t.Errorf("Expected distributor_id dist-1, got %s", req.DistributorID)
	}
	if req.ProductID != "prod-1" || req.ProductName != "Rice 25kg" {
		t.Errorf("Product fields not copied: %s %s", req.ProductID, req.ProductName)
	}
	if req.Quantity != 10 {
		t.Errorf("Expected quantity == MOQ (10), got %d", req.Quantity)
	}
	if req.UnitPrice != 38.50 {
		t.Errorf("Expected unit price 38.50, got %v", req.UnitPrice)
	}
	if req.PaymentMode != "PREPAID" {
		t.Errorf("Expected first payment mode, got %s", req.PaymentMode)
	}
	if req.DeliveryAddress != PlaceholderDeliveryAddress {
		t.Errorf("Expected placeholder address, got %s", req.DeliveryAddress)
	}
	if req.RequestID == "" {
		t.Error("Expected a generated request id")
	}
}

func TestConfirmPaymentModeFallback(t *testing.T) {
	placer := &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-2"}}
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, placer)

	if _, err := s.Select("prod-2"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if _, err := s.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if placer.lastReq.PaymentMode != "COD" {
		t.Errorf("Expected COD fallback, got %s", placer.lastReq.PaymentMode)
	}
}

func TestConfirmSuccessAwaitsAcknowledgement(t *testing.T) {
	cat := &fakeCatalog{products: sampleProducts()}
	placer := &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-123"}}
	s, notifier := newTestSubmitter(t, cat, placer)

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	outcome, err := s.Confirm()
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !outcome.Succeeded || outcome.OrderID != "ORD-123" {
		t.Fatalf("Unexpected outcome: %+v", outcome)
	}
	if s.State() != StateSucceeded {
		t.Errorf("Expected succeeded, got %s", s.State())
	}

	// Success notice carries the order id.
	found := false
	for _, n := range notifier.notices {
		if n.Code == notify.CodeOrderPlaced && strings.Contains(n.Message, "ORD-123") {
			found = true
		}
	}
	if !found {
		t.Error("Expected an order_placed notice containing ORD-123")
	}

	// Reload happens only after acknowledgement.
	if cat.loadCalls != 0 {
		t.Fatalf("Reload before ack: %d calls", cat.loadCalls)
	}
	if err := s.Acknowledge(); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle after ack, got %s", s.State())
	}
	if cat.loadCalls != 1 {
		t.Errorf("Expected exactly one reload after ack, got %d", cat.loadCalls)
	}
}

func TestConfirmFailureResolvesToIdleWithoutReload(t *testing.T) {
	cat := &fakeCatalog{products: sampleProducts()}
	placer := &fakePlacer{err: &inventory.ServiceError{StatusCode: 400, Message: "Insufficient stock"}}
	s, notifier := newTestSubmitter(t, cat, placer)

	before := cat.Products()

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	outcome, err := s.Confirm()
	if err != nil {
		t.Fatalf("Confirm returned transition error: %v", err)
	}
	if outcome.Succeeded {
		t.Fatal("Expected a failed outcome")
	}
	if outcome.Message != "Insufficient stock" {
		t.Errorf("Expected exact service message, got %q", outcome.Message)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle after failure, got %s", s.State())
	}
	if cat.loadCalls != 0 {
		t.Errorf("Failure must not trigger reload, got %d calls", cat.loadCalls)
	}

	// Catalog untouched by the failed submission.
	after := cat.Products()
	if len(before) != len(after) {
		t.Errorf("Catalog mutated by failed submission: %d vs %d", len(before), len(after))
	}

	found := false
	for _, n := range notifier.notices {
		if n.Code == notify.CodeOrderFailed && n.Message == "Insufficient stock" {
			found = true
		}
	}
	if !found {
		t.Error("Expected an order_failed notice with the service message")
	}

	// The machine is cyclic: a new submission can start immediately.
	if _, err := s.Select("prod-2"); err != nil {
		t.Errorf("Expected a fresh select to work, got %v", err)
	}
}

func TestConfirmTransportFailureUsesGenericMessage(t *testing.T) {
	placer := &fakePlacer{err: errors.New("dial tcp: connection refused")}
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, placer)

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	outcome, err := s.Confirm()
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if outcome.Message != genericFailureMessage {
		t.Errorf("Expected generic fallback, got %q", outcome.Message)
	}
}

func TestConfirmWithoutSelection(t *testing.T) {
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, &fakePlacer{})

	if _, err := s.Confirm(); !errors.Is(err, ErrNothingToConfirm) {
		t.Fatalf("Expected ErrNothingToConfirm, got %v", err)
	}
}

func TestAcknowledgeWithoutSuccess(t *testing.T) {
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, &fakePlacer{})

	if err := s.Acknowledge(); !errors.Is(err, ErrNothingToAck) {
		t.Fatalf("Expected ErrNothingToAck, got %v", err)
	}
}

func TestExactlyOneCreateOrderCallPerConfirmation(t *testing.T) {
	placer := &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-9"}}
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, placer)

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if _, err := s.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if placer.calls != 1 {
		t.Errorf("Expected exactly one create-order call, got %d", placer.calls)
	}

	// A second confirm without a new selection must not re-submit.
	if _, err := s.Confirm(); err == nil {
		t.Error("Expected error for confirm without pending selection")
	}
	if placer.calls != 1 {
		t.Errorf("Re-confirm made an extra call: %d", placer.calls)
	}
}

func TestStateTransitionSequence(t *testing.T) {
	tests := []struct {
		name     string
		placer   *fakePlacer
		run      func(t *testing.T, s *Submitter)
		expected []State
	}{
		{
			name:   "select_then_cancel",
			placer: &fakePlacer{},
			run: func(t *testing.T, s *Submitter) {
				s.Select("prod-1")
				s.Cancel()
			},
			expected: []State{StateConfirming, StateIdle},
		},
		{
			name:   "successful_submission",
			placer: &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-7"}},
			run: func(t *testing.T, s *Submitter) {
				s.Select("prod-1")
				s.Confirm()
				s.Acknowledge()
			},
			expected: []State{StateConfirming, StateSubmitting, StateSucceeded, StateIdle},
		},
		{
			name:   "failed_submission",
			placer: &fakePlacer{err: &inventory.ServiceError{StatusCode: 500, Message: "boom"}},
			run: func(t *testing.T, s *Submitter) {
				s.Select("prod-1")
				s.Confirm()
			},
			expected: []State{StateConfirming, StateSubmitting, StateFailed, StateIdle},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, tt.placer)

			var transitions []State
			s.SetStateChangeCallback(func(from, to State) {
				transitions = append(transitions, to)
			})

			tt.run(t, s)

			if len(transitions) != len(tt.expected) {
				t.Fatalf("Expected %d transitions, got %d: %v", len(tt.expected), len(transitions), transitions)
			}
			for i, want := range tt.expected {
				if transitions[i] != want {
					t.Errorf("Transition %d: expected %s, got %s", i, want, transitions[i])
				}
			}
		})
	}
}

type recordingPublisher struct {
	events []events.OrderPlacedEvent
	err    error
}

func (r *recordingPublisher) PublishOrderPlaced(event events.OrderPlacedEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func TestSuccessPublishesOrderEvent(t *testing.T) {
	placer := &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-55"}}
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, placer)

	publisher := &recordingPublisher{}
	s.SetEventPublisher(publisher)

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if _, err := s.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.OrderID != "ORD-55" || event.BuyerID != "buyer-42" || event.Quantity != 10 {
		t.Errorf("Unexpected event: %+v", event)
	}
}

func TestPublishFailureDoesNotAffectOutcome(t *testing.T) {
	placer := &fakePlacer{result: &models.OrderResult{Success: true, OrderID: "ORD-56"}}
	s, _ := newTestSubmitter(t, &fakeCatalog{products: sampleProducts()}, placer)

	s.SetEventPublisher(&recordingPublisher{err: errors.New("broker down")})

	if _, err := s.Select("prod-1"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	outcome, err := s.Confirm()
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !outcome.Succeeded {
		t.Error("Publish failure must not fail the submission")
	}
}
