package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
)

const rentalColumns = `id, customer_id, customer_name, customer_phone, customer_is_gold,
	movie_id, movie_title, movie_daily_rental_rate, date_out, date_returned, rental_fee`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// Open connects to Postgres and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS movies (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			genre_id TEXT NOT NULL DEFAULT '',
			genre_name TEXT NOT NULL DEFAULT '',
			number_in_stock BIGINT NOT NULL,
			daily_rental_rate NUMERIC(12,2) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rentals (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			customer_is_gold BOOLEAN NOT NULL DEFAULT FALSE,
			movie_id TEXT NOT NULL,
			movie_title TEXT NOT NULL,
			movie_daily_rental_rate NUMERIC(12,2) NOT NULL,
			date_out TIMESTAMPTZ NOT NULL,
			date_returned TIMESTAMPTZ,
			rental_fee NUMERIC(12,2),
			CONSTRAINT rental_fee_iff_returned CHECK ((date_returned IS NULL) = (rental_fee IS NULL)),
			CONSTRAINT rental_fee_non_negative CHECK (rental_fee IS NULL OR rental_fee >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_customer_movie ON rentals (customer_id, movie_id, date_out DESC)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRental(row rowScanner) (models.Rental, error) {
	var (
		r        models.Rental
		returned sql.NullTime
		fee      decimal.NullDecimal
	)
	err := row.Scan(
		&r.ID,
		&r.Customer.ID,
		&r.Customer.Name,
		&r.Customer.Phone,
		&r.Customer.IsGold,
		&r.Movie.ID,
		&r.Movie.Title,
		&r.Movie.DailyRentalRate,
		&r.DateOut,
		&returned,
		&fee,
	)
	if err != nil {
		return models.Rental{}, err
	}
	if returned.Valid {
		t := returned.Time
		r.DateReturned = &t
	}
	if fee.Valid {
		f := fee.Decimal
		r.RentalFee = &f
	}
	return r, nil
}

func (p *PostgresStore) SaveRental(ctx context.Context, rental models.Rental) error {
	if err := rental.Validate(); err != nil {
		return err
	}

	const query = `INSERT INTO rentals (` + rentalColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	var fee decimal.NullDecimal
	if rental.RentalFee != nil {
		fee = decimal.NewNullDecimal(*rental.RentalFee)
	}
	var returned sql.NullTime
	if rental.DateReturned != nil {
		returned = sql.NullTime{Time: *rental.DateReturned, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		rental.ID,
		rental.Customer.ID,
		rental.Customer.Name,
		rental.Customer.Phone,
		rental.Customer.IsGold,
		rental.Movie.ID,
		rental.Movie.Title,
		rental.Movie.DailyRentalRate,
		rental.DateOut,
		returned,
		fee,
	)
	return err
}

func (p *PostgresStore) GetRental(ctx context.Context, id string) (models.Rental, error) {
	const query = `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`

	r, err := scanRental(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rental{}, models.ErrRentalNotFound
	}
	return r, err
}

func (p *PostgresStore) FindLatestRental(ctx context.Context, customerID, movieID string) (models.Rental, error) {
	const query = `SELECT ` + rentalColumns + ` FROM rentals
	WHERE customer_id = $1 AND movie_id = $2
	ORDER BY (date_returned IS NULL) DESC, date_out DESC
	LIMIT 1`

	r, err := scanRental(p.db.QueryRowContext(ctx, query, customerID, movieID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rental{}, models.ErrRentalNotFound
	}
	return r, err
}

// CloseRental only updates a row whose date_returned is still NULL, so of two
// racing closes exactly one sees a row come back.
func (p *PostgresStore) CloseRental(ctx context.Context, id string, returnedAt time.Time, fee decimal.Decimal) (models.Rental, error) {
	const query = `UPDATE rentals
	SET date_returned = $2, rental_fee = $3
	WHERE id = $1 AND date_returned IS NULL
	RETURNING ` + rentalColumns

	r, err := scanRental(p.db.QueryRowContext(ctx, query, id, returnedAt, fee))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Rental{}, err
	}

	var exists int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM rentals WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rental{}, models.ErrRentalNotFound
	}
	if err != nil {
		return models.Rental{}, err
	}
	return models.Rental{}, models.ErrRentalAlreadyClosed
}

func (p *PostgresStore) SaveMovie(ctx context.Context, movie models.Movie) error {
	const query = `INSERT INTO movies (id, title, genre_id, genre_name, number_in_stock, daily_rental_rate)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		genre_id = EXCLUDED.genre_id,
		genre_name = EXCLUDED.genre_name,
		number_in_stock = EXCLUDED.number_in_stock,
		daily_rental_rate = EXCLUDED.daily_rental_rate`

	_, err := p.db.ExecContext(ctx, query,
		movie.ID, movie.Title, movie.Genre.ID, movie.Genre.Name, movie.NumberInStock, movie.DailyRentalRate)
	return err
}

func (p *PostgresStore) GetMovie(ctx context.Context, id string) (models.Movie, error) {
	const query = `SELECT id, title, genre_id, genre_name, number_in_stock, daily_rental_rate
	FROM movies WHERE id = $1`

	var m models.Movie
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.Title, &m.Genre.ID, &m.Genre.Name, &m.NumberInStock, &m.DailyRentalRate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Movie{}, models.ErrMovieNotFound
	}
	return m, err
}

func (p *PostgresStore) IncrementStock(ctx context.Context, movieID string, delta int64) error {
	const query = `UPDATE movies SET number_in_stock = number_in_stock + $2 WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query, movieID, delta)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return models.ErrMovieNotFound
	}
	return nil
}

var (
	_ interfaces.RentalStore  = (*PostgresStore)(nil)
	_ interfaces.CatalogStore = (*PostgresStore)(nil)
)
