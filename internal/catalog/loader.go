package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jogardn/storefront-gateway/internal/notify"
	"github.com/jogardn/storefront-gateway/pkg/models"
	"github.com/sirupsen/logrus"
)

// ErrLoadInFlight is returned when a load or refresh is requested while a
// previous fetch is still outstanding. The outstanding fetch is unaffected.
var ErrLoadInFlight = errors.New("catalog load already in flight")

// Fetcher is the slice of the inventory client the loader depends on.
type Fetcher interface {
	FetchProducts(filter models.ProductFilter) ([]models.Product, error)
}

// ViewState is what the screen renders: the current product sequence in
// service order plus the two in-flight flags. An empty Products slice is a
// valid state, not an error.
type ViewState struct {
	Products   []models.Product `json:"products"`
	Loading    bool             `json:"loading"`
	Refreshing bool             `json:"refreshing"`
}

// Loader owns the catalog portion of the view state. Every invocation makes
// exactly one fetch call; a failed fetch leaves the previous products intact
// and publishes a single error notice.
type Loader struct {
	fetcher  Fetcher
	filter   models.ProductFilter
	notifier notify.Notifier
	logger   *logrus.Logger

	mu         sync.Mutex
	products   []models.Product
	loading    bool
	refreshing bool
	inFlight   bool
}

// NewLoader builds a loader pinned to the orderable-products filter.
// distributorID is optional; empty means all distributors.
func NewLoader(fetcher Fetcher, distributorID string, notifier notify.Notifier, logger *logrus.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		filter: models.ProductFilter{
			DistributorID: distributorID,
			OnlyAvailable: true,
		},
		notifier: notifier,
		logger:   logger,
		products: []models.Product{},
	}
}

// Load is the initial-load path; it raises the loading flag.
func (l *Loader) Load() error {
	return l.run(false)
}

// Refresh is the explicit user-triggered path; it raises the refreshing flag.
func (l *Loader) Refresh() error {
	return l.run(true)
}

func (l *Loader) run(refresh bool) error {
	l.mu.Lock()
	if l.inFlight {
		l.mu.Unlock()
		l.logger.Debug("Catalog fetch already in flight, ignoring request")
		return ErrLoadInFlight
	}
	l.inFlight = true
	if refresh {
		l.refreshing = true
	} else {
		l.loading = true
	}
	l.mu.Unlock()

	products, err := l.fetcher.FetchProducts(l.filter)

	l.mu.Lock()
	// Both flags drop on completion regardless of outcome.
	l.loading = false
	l.refreshing = false
	l.inFlight = false
	if err == nil {
		if products == nil {
			products = []models.Product{}
		}
		l.products = products
	}
	count := len(l.products)
	l.mu.Unlock()

	if err != nil {
		l.logger.WithError(err).WithField("refresh", refresh).Error("Failed to fetch catalog")
		l.notifier.Publish(notify.Notice{
			Level:   notify.LevelError,
			Code:    notify.CodeFetchFailed,
			Message: fmt.Sprintf("Could not load products: %s", err.Error()),
		})
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"count":   count,
		"refresh": refresh,
	}).Info("Catalog loaded")

	l.notifier.Publish(notify.Notice{
		Level:   notify.LevelInfo,
		Code:    notify.CodeCatalogUpdated,
		Message: fmt.Sprintf("%d products available", count),
	})

	return nil
}

// Snapshot returns a copy of the current view state; the returned slice does
// not alias the loader's internal one.
func (l *Loader) Snapshot() ViewState {
	l.mu.Lock()
	defer l.mu.Unlock()

	products := make([]models.Product, len(l.products))
	copy(products, l.products)

	return ViewState{
		Products:   products,
		Loading:    l.loading,
		Refreshing: l.refreshing,
	}
}

// Products returns a copy of the currently loaded product sequence.
func (l *Loader) Products() []models.Product {
	l.mu.Lock()
	defer l.mu.Unlock()

	products := make([]models.Product, len(l.products))
	copy(products, l.products)
	return products
}
