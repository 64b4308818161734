// Package seed loads the demo catalog and one open rental so a fresh
// instance has something to return.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/ledger"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
)

var catalog = []struct {
	genre  string
	movies []string
}{
	{"Comedy", []string{"Airplane", "The Hangover", "Wedding Crashers"}},
	{"Action", []string{"Die Hard", "Terminator", "The Avengers"}},
	{"Romance", []string{"The Notebook", "When Harry Met Sally", "Pretty Woman"}},
	{"Thriller", []string{"The Sixth Sense", "Gone Girl", "The Others"}},
}

// DemoCustomer is the customer holding the seeded rental.
var DemoCustomer = models.CustomerSnapshot{
	ID:    stableID("customer", "demo"),
	Name:  "Demo Customer",
	Phone: "12345",
}

func stableID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("vidly:"+kind+":"+name)).String()
}

// Movies returns the demo catalog. IDs are derived from titles so seeding
// twice updates the same records.
func Movies() []models.Movie {
	var out []models.Movie
	for _, g := range catalog {
		genre := models.Genre{ID: stableID("genre", g.genre), Name: g.genre}
		for i, title := range g.movies {
			out = append(out, models.Movie{
				ID:              stableID("movie", title),
				Title:           title,
				Genre:           genre,
				NumberInStock:   int64(5 * (i + 1)),
				DailyRentalRate: decimal.NewFromInt(2),
			})
		}
	}
	return out
}

// Load writes the demo movies and, unless one is already open, a rental of
// the first movie checked out a week before now.
func Load(ctx context.Context, store interfaces.CatalogStore, l *ledger.Ledger, now time.Time) (models.Rental, error) {
	movies := Movies()
	for _, m := range movies {
		if err := store.SaveMovie(ctx, m); err != nil {
			return models.Rental{}, fmt.Errorf("seed movie %q: %w", m.Title, err)
		}
	}

	movie := movies[0]
	existing, err := l.FindActiveRental(ctx, DemoCustomer.ID, movie.ID)
	switch {
	case err == nil && !existing.IsReturned():
		return existing, nil
	case err != nil && !errors.Is(err, ledger.ErrNotFound):
		return models.Rental{}, err
	}

	return l.Open(ctx, models.Rental{
		Customer: DemoCustomer,
		Movie:    movie.Snapshot(),
		DateOut:  now.UTC().AddDate(0, 0, -7),
	})
}
