package returns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/auth"
	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/ledger"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models/events"
)

const defaultReconcileTimeout = 5 * time.Second

// Ledger is the part of the rental ledger the workflow drives.
type Ledger interface {
	FindActiveRental(ctx context.Context, customerID, movieID string) (models.Rental, error)
	Close(ctx context.Context, rental models.Rental, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error)
}

// Catalog is the part of the movie catalog the workflow drives.
type Catalog interface {
	IncrementStock(ctx context.Context, movieID string, delta int64) error
}

type Request struct {
	CustomerID string
	MovieID    string
}

type Option func(*Service)

// WithClock replaces time.Now as the source of the return timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReconcileTimeout bounds the ledger close and the stock update after it.
func WithReconcileTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reconcileTimeout = d
		}
	}
}

// Service runs the return workflow: find the rental, close it on the ledger,
// then put the copy back in stock.
type Service struct {
	ledger           Ledger
	catalog          Catalog
	publisher        interfaces.EventPublisher
	log              *zap.Logger
	now              func() time.Time
	reconcileTimeout time.Duration
}

func NewService(l Ledger, c Catalog, p interfaces.EventPublisher, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:           l,
		catalog:          c,
		publisher:        p,
		log:              log,
		now:              time.Now,
		reconcileTimeout: defaultReconcileTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessReturn closes the caller's active rental of a movie and increments
// the movie's stock by one.
//
// The ledger write always happens first. Once it has succeeded the return is
// final: the close and the stock update run even if ctx is cancelled, and if it fails the
// closed rental is returned together with an INVENTORY_RECONCILIATION_FAILED
// error instead of being rolled back.
func (s *Service) ProcessReturn(ctx context.Context, req Request, identity *auth.Identity) (models.Rental, error) {
	if identity == nil || identity.SubjectID == "" {
		return models.Rental{}, makeErr(ErrUnauthorized, "unauthenticated", nil)
	}
	if err := validateRequest(req); err != nil {
		return models.Rental{}, err
	}

	rental, err := s.ledger.FindActiveRental(ctx, req.CustomerID, req.MovieID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return models.Rental{}, makeErr(ErrNotFound, "no rental found", nil)
		}
		return models.Rental{}, err
	}
	if rental.IsReturned() {
		return models.Rental{}, makeErr(ErrAlreadyProcessed, "rental already processed", nil)
	}

	returnedAt := s.now().UTC()
	fee := ledger.RentalFee(rental.DateOut, returnedAt, rental.Movie.DailyRentalRate)

	// A close that reached the store must not be lost to a client hanging up
	// mid-write, so from here on the request context only carries values.
	bg := context.WithoutCancel(ctx)

	closed, err := s.closeRental(bg, rental, returnedAt, fee)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyClosed):
			return models.Rental{}, makeErr(ErrAlreadyProcessed, "rental already processed", err)
		case errors.Is(err, ledger.ErrNotFound):
			return models.Rental{}, makeErr(ErrNotFound, "no rental found", err)
		default:
			return models.Rental{}, err
		}
	}

	s.log.Info("rental returned",
		zap.String("rental_id", closed.ID),
		zap.String("customer_id", closed.Customer.ID),
		zap.String("movie_id", closed.Movie.ID),
		zap.String("rental_fee", closed.RentalFee.String()),
		zap.String("requested_by", identity.SubjectID))

	// The rental is closed for good from here on.
	if err := s.reconcileStock(bg, closed); err != nil {
		s.log.Error("inventory reconciliation failed",
			zap.String("rental_id", closed.ID),
			zap.String("movie_id", closed.Movie.ID),
			zap.Error(err))
		s.publish(bg, events.InventoryReconciliationPendingTopic, closed.Movie.ID, events.InventoryReconciliationPending{
			RentalID:   closed.ID,
			MovieID:    closed.Movie.ID,
			StockDelta: 1,
			Reason:     err.Error(),
			OccurredAt: s.now().UTC(),
		})
		return closed, makeErr(ErrInventoryReconciliationFailed, "rental closed but movie stock was not updated", err)
	}

	s.publish(bg, events.RentalReturnedTopic, closed.ID, events.RentalReturned{
		RentalID:     closed.ID,
		CustomerID:   closed.Customer.ID,
		MovieID:      closed.Movie.ID,
		RentalFee:    *closed.RentalFee,
		DateOut:      closed.DateOut,
		DateReturned: *closed.DateReturned,
		OccurredAt:   s.now().UTC(),
	})
	return closed, nil
}

func (s *Service) closeRental(ctx context.Context, rental models.Rental, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error) {
	ctx, cancel := context.WithTimeout(ctx, s.reconcileTimeout)
	defer cancel()
	return s.ledger.Close(ctx, rental, returnedAt, fee)
}

func (s *Service) reconcileStock(ctx context.Context, rental models.Rental) error {
	ctx, cancel := context.WithTimeout(ctx, s.reconcileTimeout)
	defer cancel()
	return s.catalog.IncrementStock(ctx, rental.Movie.ID, 1)
}

// publish is best effort; the return has already been committed.
func (s *Service) publish(ctx context.Context, topic, key string, event any) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.reconcileTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, topic, key, event); err != nil {
		s.log.Warn("event publish failed",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
	}
}

func validateRequest(req Request) error {
	if req.CustomerID == "" {
		return invalidArg("customerId", "customerId is required")
	}
	if _, err := uuid.Parse(req.CustomerID); err != nil {
		return invalidArg("customerId", "customerId is not a valid id")
	}
	if req.MovieID == "" {
		return invalidArg("movieId", "movieId is required")
	}
	if _, err := uuid.Parse(req.MovieID); err != nil {
		return invalidArg("movieId", "movieId is not a valid id")
	}
	return nil
}
