package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
)

var (
	ErrNotFound      = models.ErrRentalNotFound
	ErrAlreadyClosed = models.ErrRentalAlreadyClosed
)

// Ledger owns rental records and is the only component allowed to close them.
// It holds the storage layer and one mutex per rental being closed so two
// closes of the same rental in this process never reach the store at the same
// time. The store's own compare-and-set stays the authority across processes.
type Ledger struct {
	store interfaces.RentalStore
	now   func() time.Time
	muMap map[string]*rentalLock // entries live only while a close is in flight
	mapMu sync.Mutex             // protects muMap itself
}

type rentalLock struct {
	mu   sync.Mutex
	refs int
}

// NewLedger creates a Ledger on top of any RentalStore implementation
// (memory, postgres, mongo).
func NewLedger(store interfaces.RentalStore) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		muMap: make(map[string]*rentalLock),
	}
}

// lockRental takes the rental's mutex and returns its release func. A closed
// rental never needs its lock again, so the entry goes away with the last
// holder.
func (l *Ledger) lockRental(rentalID string) func() {
	l.mapMu.Lock()
	lk, exists := l.muMap[rentalID]
	if !exists {
		lk = &rentalLock{}
		l.muMap[rentalID] = lk
	}
	lk.refs++
	l.mapMu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()

		l.mapMu.Lock()
		defer l.mapMu.Unlock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.muMap, rentalID)
		}
	}
}

// Open records a new active rental. Checkout itself lives outside this
// service; Open is how seed data and tests put rentals on the ledger.
func (l *Ledger) Open(ctx context.Context, rental models.Rental) (models.Rental, error) {
	if rental.IsReturned() || rental.RentalFee != nil {
		return models.Rental{}, errors.New("a new rental must be active")
	}
	if rental.ID == "" {
		rental.ID = uuid.NewString()
	}
	if rental.DateOut.IsZero() {
		rental.DateOut = l.now().UTC()
	}
	if err := rental.Validate(); err != nil {
		return models.Rental{}, err
	}
	if err := l.store.SaveRental(ctx, rental); err != nil {
		return models.Rental{}, fmt.Errorf("save rental %s: %w", rental.ID, err)
	}
	return rental, nil
}

// Get loads a single rental by ID.
func (l *Ledger) Get(ctx context.Context, id string) (models.Rental, error) {
	rental, err := l.store.GetRental(ctx, id)
	if err != nil {
		return models.Rental{}, fmt.Errorf("get rental %s: %w", id, err)
	}
	return rental, nil
}

// FindActiveRental looks a rental up by the identifiers frozen in its
// customer and movie snapshots. An active rental always wins; when every
// rental for the pair is closed the newest closed one comes back so the
// caller can tell "already returned" apart from "never rented".
func (l *Ledger) FindActiveRental(ctx context.Context, customerID, movieID string) (models.Rental, error) {
	rental, err := l.store.FindLatestRental(ctx, customerID, movieID)
	if err != nil {
		return models.Rental{}, fmt.Errorf("find rental customer=%s movie=%s: %w", customerID, movieID, err)
	}
	return rental, nil
}

// Close moves an active rental to its terminal state, stamping the return
// date and fee together. It fails with ErrAlreadyClosed when the rental was
// already closed, including when another request won the race after the
// caller loaded it, and with ErrNotFound when the record is gone.
func (l *Ledger) Close(ctx context.Context, rental models.Rental, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error) {
	if fee.IsNegative() {
		return models.Rental{}, errors.New("rental fee must not be negative")
	}
	if rental.IsReturned() {
		return models.Rental{}, fmt.Errorf("close rental %s: %w", rental.ID, ErrAlreadyClosed)
	}

	unlock := l.lockRental(rental.ID)
	defer unlock()

	closed, err := l.store.CloseRental(ctx, rental.ID, returnedAt, fee)
	if err != nil {
		return models.Rental{}, fmt.Errorf("close rental %s: %w", rental.ID, err)
	}
	if err := closed.Validate(); err != nil {
		return models.Rental{}, fmt.Errorf("close rental %s: %w", rental.ID, err)
	}
	return closed, nil
}
