package returns_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/auth"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/ledger"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models/events"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/returns"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/storage/memory"
)

// --- doubles ---

type ledgerMock struct {
	findFn  func(ctx context.Context, customerID, movieID string) (models.Rental, error)
	closeFn func(ctx context.Context, r models.Rental, at time.Time, fee decimal.Decimal) (models.Rental, error)
}

func (m *ledgerMock) FindActiveRental(ctx context.Context, customerID, movieID string) (models.Rental, error) {
	return m.findFn(ctx, customerID, movieID)
}

func (m *ledgerMock) Close(ctx context.Context, r models.Rental, at time.Time, fee decimal.Decimal) (models.Rental, error) {
	return m.closeFn(ctx, r, at, fee)
}

type catalogMock struct {
	incFn func(ctx context.Context, movieID string, delta int64) error
}

func (m *catalogMock) IncrementStock(ctx context.Context, movieID string, delta int64) error {
	return m.incFn(ctx, movieID, delta)
}

type published struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, event: event})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

// --- fixture ---

type fixture struct {
	store      *memory.MemoryStore
	ledger     *ledger.Ledger
	publisher  *recordingPublisher
	svc        *returns.Service
	rental     models.Rental
	customerID string
	movieID    string
}

var caller = &auth.Identity{SubjectID: "user-1"}

func newFixture(t *testing.T, daysOut int, rate int64, stock int64) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewMemoryStore()
	l := ledger.NewLedger(store)
	pub := &recordingPublisher{}

	customerID := uuid.NewString()
	movie := models.Movie{
		ID:              uuid.NewString(),
		Title:           "The Hangover",
		NumberInStock:   stock,
		DailyRentalRate: decimal.NewFromInt(rate),
	}
	require.NoError(t, store.SaveMovie(ctx, movie))

	rental, err := l.Open(ctx, models.Rental{
		Customer: models.CustomerSnapshot{ID: customerID, Name: "12345", Phone: "12345"},
		Movie:    movie.Snapshot(),
		DateOut:  time.Now().UTC().AddDate(0, 0, -daysOut),
	})
	require.NoError(t, err)

	return &fixture{
		store:      store,
		ledger:     l,
		publisher:  pub,
		svc:        returns.NewService(l, store, pub, zaptest.NewLogger(t)),
		rental:     rental,
		customerID: customerID,
		movieID:    movie.ID,
	}
}

func (f *fixture) request() returns.Request {
	return returns.Request{CustomerID: f.customerID, MovieID: f.movieID}
}

func (f *fixture) stock(t *testing.T) int64 {
	t.Helper()
	m, err := f.store.GetMovie(context.Background(), f.movieID)
	require.NoError(t, err)
	return m.NumberInStock
}

// --- tests ---

func TestProcessReturn_EndToEnd(t *testing.T) {
	f := newFixture(t, 7, 2, 10)

	got, err := f.svc.ProcessReturn(context.Background(), f.request(), caller)
	require.NoError(t, err)

	require.NoError(t, got.Validate())
	require.NotNil(t, got.RentalFee)
	require.True(t, got.RentalFee.Equal(decimal.NewFromInt(14)), "fee %s", got.RentalFee)
	require.NotNil(t, got.DateReturned)
	require.WithinDuration(t, time.Now(), *got.DateReturned, 5*time.Second)
	require.Equal(t, int64(11), f.stock(t))

	require.Equal(t, []string{events.RentalReturnedTopic}, f.publisher.topics())
	ev, ok := f.publisher.events[0].event.(events.RentalReturned)
	require.True(t, ok)
	require.Equal(t, got.ID, ev.RentalID)
	require.True(t, ev.RentalFee.Equal(decimal.NewFromInt(14)))
}

func TestProcessReturn_SameDayIsFree(t *testing.T) {
	f := newFixture(t, 0, 2, 3)

	got, err := f.svc.ProcessReturn(context.Background(), f.request(), caller)
	require.NoError(t, err)
	require.True(t, got.RentalFee.IsZero())
	require.Equal(t, int64(4), f.stock(t))
}

func TestProcessReturn_UsesInjectedClock(t *testing.T) {
	f := newFixture(t, 0, 3, 0)
	returnedAt := f.rental.DateOut.Add(4*24*time.Hour + 3*time.Hour)
	svc := returns.NewService(f.ledger, f.store, nil, zaptest.NewLogger(t),
		returns.WithClock(func() time.Time { return returnedAt }))

	got, err := svc.ProcessReturn(context.Background(), f.request(), caller)
	require.NoError(t, err)
	require.True(t, got.RentalFee.Equal(decimal.NewFromInt(12)), "fee %s", got.RentalFee)
	require.True(t, got.DateReturned.Equal(returnedAt))
}

func TestProcessReturn_Unauthorized(t *testing.T) {
	fail := func() { t.Fatal("no ledger or catalog access expected") }
	l := &ledgerMock{
		findFn: func(context.Context, string, string) (models.Rental, error) {
			fail()
			return models.Rental{}, nil
		},
		closeFn: func(context.Context, models.Rental, time.Time, decimal.Decimal) (models.Rental, error) {
			fail()
			return models.Rental{}, nil
		},
	}
	c := &catalogMock{incFn: func(context.Context, string, int64) error {
		fail()
		return nil
	}}
	svc := returns.NewService(l, c, nil, zaptest.NewLogger(t))

	req := returns.Request{CustomerID: uuid.NewString(), MovieID: uuid.NewString()}
	for _, id := range []*auth.Identity{nil, {}} {
		_, err := svc.ProcessReturn(context.Background(), req, id)
		require.Error(t, err)
		require.Equal(t, returns.ErrUnauthorized, returns.Code(err))
	}
}

func TestProcessReturn_InvalidArguments(t *testing.T) {
	f := newFixture(t, 1, 2, 1)
	valid := uuid.NewString()

	cases := []struct {
		name  string
		req   returns.Request
		field string
	}{
		{"missing customer", returns.Request{MovieID: valid}, "customerId"},
		{"bad customer", returns.Request{CustomerID: "1234", MovieID: valid}, "customerId"},
		{"missing movie", returns.Request{CustomerID: valid}, "movieId"},
		{"bad movie", returns.Request{CustomerID: valid, MovieID: "abc"}, "movieId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ProcessReturn(context.Background(), tc.req, caller)
			require.Equal(t, returns.ErrInvalidArgument, returns.Code(err))
			require.Equal(t, tc.field, returns.Field(err))
		})
	}
	require.Equal(t, int64(1), f.stock(t))
}

func TestProcessReturn_UnknownPairIsNotFound(t *testing.T) {
	f := newFixture(t, 1, 2, 1)

	_, err := f.svc.ProcessReturn(context.Background(),
		returns.Request{CustomerID: uuid.NewString(), MovieID: f.movieID}, caller)
	require.Equal(t, returns.ErrNotFound, returns.Code(err))

	_, err = f.svc.ProcessReturn(context.Background(),
		returns.Request{CustomerID: f.customerID, MovieID: uuid.NewString()}, caller)
	require.Equal(t, returns.ErrNotFound, returns.Code(err))
	require.Equal(t, int64(1), f.stock(t))
}

func TestProcessReturn_AlreadyProcessedDoesNotMutate(t *testing.T) {
	f := newFixture(t, 2, 2, 5)
	ctx := context.Background()

	first, err := f.svc.ProcessReturn(ctx, f.request(), caller)
	require.NoError(t, err)

	_, err = f.svc.ProcessReturn(ctx, f.request(), caller)
	require.Equal(t, returns.ErrAlreadyProcessed, returns.Code(err))

	again, err := f.ledger.Get(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, again.DateReturned.Equal(*first.DateReturned))
	require.True(t, again.RentalFee.Equal(*first.RentalFee))
	require.Equal(t, int64(6), f.stock(t))
}

func TestProcessReturn_LostRaceIsAlreadyProcessed(t *testing.T) {
	active := models.Rental{
		ID:       "r-1",
		Customer: models.CustomerSnapshot{ID: "c"},
		Movie:    models.MovieSnapshot{ID: "m", DailyRentalRate: decimal.NewFromInt(1)},
		DateOut:  time.Now().Add(-24 * time.Hour),
	}
	l := &ledgerMock{
		findFn: func(context.Context, string, string) (models.Rental, error) { return active, nil },
		closeFn: func(context.Context, models.Rental, time.Time, decimal.Decimal) (models.Rental, error) {
			return models.Rental{}, ledger.ErrAlreadyClosed
		},
	}
	c := &catalogMock{incFn: func(context.Context, string, int64) error {
		t.Fatal("stock must not move when the close lost")
		return nil
	}}
	svc := returns.NewService(l, c, nil, zaptest.NewLogger(t))

	_, err := svc.ProcessReturn(context.Background(),
		returns.Request{CustomerID: uuid.NewString(), MovieID: uuid.NewString()}, caller)
	require.Equal(t, returns.ErrAlreadyProcessed, returns.Code(err))
	require.ErrorIs(t, err, ledger.ErrAlreadyClosed)
}

func TestProcessReturn_LedgerFailureIsInternal(t *testing.T) {
	boom := errors.New("db down")
	l := &ledgerMock{
		findFn: func(context.Context, string, string) (models.Rental, error) { return models.Rental{}, boom },
	}
	svc := returns.NewService(l, &catalogMock{}, nil, zaptest.NewLogger(t))

	_, err := svc.ProcessReturn(context.Background(),
		returns.Request{CustomerID: uuid.NewString(), MovieID: uuid.NewString()}, caller)
	require.ErrorIs(t, err, boom)
	require.Equal(t, returns.ErrCode(""), returns.Code(err))
}

func TestProcessReturn_InventoryReconciliationFailed(t *testing.T) {
	f := newFixture(t, 3, 2, 4)
	ctx := context.Background()
	stockErr := errors.New("catalog unavailable")
	calls := 0
	svc := returns.NewService(f.ledger, &catalogMock{incFn: func(context.Context, string, int64) error {
		calls++
		return stockErr
	}}, f.publisher, zaptest.NewLogger(t))

	got, err := svc.ProcessReturn(ctx, f.request(), caller)
	require.Equal(t, returns.ErrInventoryReconciliationFailed, returns.Code(err))
	require.ErrorIs(t, err, stockErr)
	require.Equal(t, 1, calls)

	// the closure itself is durable and reported
	require.True(t, got.IsReturned())
	require.True(t, got.RentalFee.Equal(decimal.NewFromInt(6)))
	stored, err := f.ledger.Get(ctx, got.ID)
	require.NoError(t, err)
	require.True(t, stored.IsReturned())
	require.Equal(t, int64(4), f.stock(t))

	require.Equal(t, []string{events.InventoryReconciliationPendingTopic}, f.publisher.topics())
	ev := f.publisher.events[0].event.(events.InventoryReconciliationPending)
	require.Equal(t, got.ID, ev.RentalID)
	require.Equal(t, int64(1), ev.StockDelta)

	// a retry does not close or charge again
	_, err = svc.ProcessReturn(ctx, f.request(), caller)
	require.Equal(t, returns.ErrAlreadyProcessed, returns.Code(err))
	require.Equal(t, 1, calls)
}

func TestProcessReturn_StockUpdateSurvivesCancellation(t *testing.T) {
	f := newFixture(t, 1, 2, 7)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &ledgerMock{
		findFn: f.ledger.FindActiveRental,
		closeFn: func(c context.Context, r models.Rental, at time.Time, fee decimal.Decimal) (models.Rental, error) {
			closed, err := f.ledger.Close(c, r, at, fee)
			cancel() // caller goes away right after the ledger write
			return closed, err
		},
	}
	var stockCtxErr error
	c := &catalogMock{incFn: func(c context.Context, movieID string, delta int64) error {
		stockCtxErr = c.Err()
		return f.store.IncrementStock(c, movieID, delta)
	}}
	svc := returns.NewService(l, c, nil, zaptest.NewLogger(t))

	_, err := svc.ProcessReturn(ctx, f.request(), caller)
	require.NoError(t, err)
	require.NoError(t, stockCtxErr)
	require.Equal(t, int64(8), f.stock(t))
}

func TestProcessReturn_CloseSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t, 7, 2, 10)
	ctx, cancel := context.WithCancel(context.Background())

	l := &ledgerMock{
		findFn: func(c context.Context, customerID, movieID string) (models.Rental, error) {
			r, err := f.ledger.FindActiveRental(c, customerID, movieID)
			cancel() // client disconnects while the close is on its way to the store
			return r, err
		},
		closeFn: func(c context.Context, r models.Rental, at time.Time, fee decimal.Decimal) (models.Rental, error) {
			if err := c.Err(); err != nil {
				return models.Rental{}, err
			}
			_, hasDeadline := c.Deadline()
			require.True(t, hasDeadline)
			return f.ledger.Close(c, r, at, fee)
		},
	}
	svc := returns.NewService(l, f.store, f.publisher, zaptest.NewLogger(t),
		returns.WithReconcileTimeout(time.Second))

	closed, err := svc.ProcessReturn(ctx, f.request(), caller)
	require.NoError(t, err)
	require.True(t, closed.IsReturned())
	require.True(t, closed.RentalFee.Equal(decimal.NewFromInt(14)))
	require.Equal(t, int64(11), f.stock(t))
	require.Equal(t, []string{events.RentalReturnedTopic}, f.publisher.topics())
}

func TestProcessReturn_PublishFailureDoesNotFailReturn(t *testing.T) {
	f := newFixture(t, 1, 2, 0)
	f.publisher.err = errors.New("broker down")

	_, err := f.svc.ProcessReturn(context.Background(), f.request(), caller)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.stock(t))
}

func TestProcessReturn_ConcurrentRequestsReturnOnce(t *testing.T) {
	f := newFixture(t, 5, 2, 10)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.ProcessReturn(context.Background(), f.request(), caller)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		code := returns.Code(err)
		assert.Contains(t, []returns.ErrCode{returns.ErrAlreadyProcessed, returns.ErrNotFound}, code, "err %v", err)
	}
	require.Equal(t, 1, wins)
	require.Equal(t, int64(11), f.stock(t))

	r, err := f.ledger.Get(context.Background(), f.rental.ID)
	require.NoError(t, err)
	require.NoError(t, r.Validate())
	require.True(t, r.RentalFee.Equal(decimal.NewFromInt(10)))
}

func TestCode_PlainErrors(t *testing.T) {
	require.Equal(t, returns.ErrCode(""), returns.Code(errors.New("plain")))
	require.Equal(t, "", returns.Field(errors.New("plain")))
	require.Equal(t, "plain", returns.Message(errors.New("plain")))
}
