package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
)

// RentalStore persists rentals. CloseRental must be a compare-and-set on the
// return date: it fails with models.ErrRentalAlreadyClosed when the rental was
// closed by someone else, and models.ErrRentalNotFound when it is gone.
type RentalStore interface {
	SaveRental(ctx context.Context, rental models.Rental) error
	GetRental(ctx context.Context, id string) (models.Rental, error)
	// FindLatestRental returns the newest active rental for the pair, falling
	// back to the newest closed one when none is active.
	FindLatestRental(ctx context.Context, customerID, movieID string) (models.Rental, error)
	CloseRental(ctx context.Context, id string, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error)
}

// CatalogStore is the part of the movie catalog the return workflow touches.
type CatalogStore interface {
	SaveMovie(ctx context.Context, movie models.Movie) error
	GetMovie(ctx context.Context, id string) (models.Movie, error)
	// IncrementStock applies delta atomically in the store.
	IncrementStock(ctx context.Context, movieID string, delta int64) error
}
