package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
)

// MemoryStore is an in-memory implementation of both RentalStore and
// CatalogStore. A single mutex makes CloseRental's check-and-set and
// IncrementStock's delta atomic.
type MemoryStore struct {
	mu      sync.Mutex
	rentals map[string]models.Rental // keyed by rental ID
	movies  map[string]models.Movie  // keyed by movie ID
}

// NewMemoryStore creates and returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rentals: make(map[string]models.Rental),
		movies:  make(map[string]models.Movie),
	}
}

func (m *MemoryStore) SaveRental(ctx context.Context, rental models.Rental) error {
	if err := rental.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rentals[rental.ID]; exists {
		return fmt.Errorf("rental %s already exists", rental.ID)
	}
	m.rentals[rental.ID] = cloneRental(rental)
	return nil
}

func (m *MemoryStore) GetRental(ctx context.Context, id string) (models.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rental, ok := m.rentals[id]
	if !ok {
		return models.Rental{}, models.ErrRentalNotFound
	}
	return cloneRental(rental), nil
}

func (m *MemoryStore) FindLatestRental(ctx context.Context, customerID, movieID string) (models.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active, closed *models.Rental
	for id := range m.rentals {
		r := m.rentals[id]
		if r.Customer.ID != customerID || r.Movie.ID != movieID {
			continue
		}
		if r.IsReturned() {
			if closed == nil || r.DateOut.After(closed.DateOut) {
				closed = &r
			}
			continue
		}
		if active == nil || r.DateOut.After(active.DateOut) {
			active = &r
		}
	}

	switch {
	case active != nil:
		return cloneRental(*active), nil
	case closed != nil:
		return cloneRental(*closed), nil
	default:
		return models.Rental{}, models.ErrRentalNotFound
	}
}

func (m *MemoryStore) CloseRental(ctx context.Context, id string, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rental, ok := m.rentals[id]
	if !ok {
		return models.Rental{}, models.ErrRentalNotFound
	}
	if rental.IsReturned() {
		return models.Rental{}, models.ErrRentalAlreadyClosed
	}

	rental.DateReturned = &returnedAt
	rental.RentalFee = &fee
	m.rentals[id] = rental
	return cloneRental(rental), nil
}

func (m *MemoryStore) SaveMovie(ctx context.Context, movie models.Movie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.movies[movie.ID] = movie
	return nil
}

func (m *MemoryStore) GetMovie(ctx context.Context, id string) (models.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	movie, ok := m.movies[id]
	if !ok {
		return models.Movie{}, models.ErrMovieNotFound
	}
	return movie, nil
}

func (m *MemoryStore) IncrementStock(ctx context.Context, movieID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	movie, ok := m.movies[movieID]
	if !ok {
		return models.ErrMovieNotFound
	}
	movie.NumberInStock += delta
	m.movies[movieID] = movie
	return nil
}

// cloneRental detaches the optional fields so callers can't reach into the map.
func cloneRental(r models.Rental) models.Rental {
	if r.DateReturned != nil {
		t := *r.DateReturned
		r.DateReturned = &t
	}
	if r.RentalFee != nil {
		f := *r.RentalFee
		r.RentalFee = &f
	}
	return r
}

// Compile-time checks
var (
	_ interfaces.RentalStore  = (*MemoryStore)(nil)
	_ interfaces.CatalogStore = (*MemoryStore)(nil)
)
