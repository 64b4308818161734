package models

import "github.com/shopspring/decimal"

// Genre is embedded in a movie the same way the catalog stores it.
type Genre struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Movie is a catalog entry. NumberInStock is shared state and only ever
// changes through an atomic delta on the catalog store.
type Movie struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Genre           Genre           `json:"genre"`
	NumberInStock   int64           `json:"numberInStock"`
	DailyRentalRate decimal.Decimal `json:"dailyRentalRate"`
}

// Snapshot copies the fields a rental needs to freeze at checkout.
func (m Movie) Snapshot() MovieSnapshot {
	return MovieSnapshot{
		ID:              m.ID,
		Title:           m.Title,
		DailyRentalRate: m.DailyRentalRate,
	}
}
