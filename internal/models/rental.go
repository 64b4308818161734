package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerSnapshot is the customer as it looked when the rental was checked out.
type CustomerSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	IsGold bool   `json:"isGold"`
}

// MovieSnapshot freezes the movie at checkout time. The fee is always computed
// from this DailyRentalRate, never from the live catalog.
type MovieSnapshot struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	DailyRentalRate decimal.Decimal `json:"dailyRentalRate"`
}

// Rental represents a customer borrowing one movie
type Rental struct {
	ID           string           `json:"id"`                     // unique identifier, never changes
	Customer     CustomerSnapshot `json:"customer"`               // denormalized copy, never re-read
	Movie        MovieSnapshot    `json:"movie"`                  // denormalized copy, never re-read
	DateOut      time.Time        `json:"dateOut"`                // checkout timestamp
	DateReturned *time.Time       `json:"dateReturned,omitempty"` // nil while active
	RentalFee    *decimal.Decimal `json:"rentalFee,omitempty"`    // nil while active
}

// IsReturned reports whether the rental reached its terminal state.
func (r Rental) IsReturned() bool {
	return r.DateReturned != nil
}

// Validate checks that a rental record is internally consistent.
func (r Rental) Validate() error {
	if r.ID == "" {
		return errors.New("rental id is required")
	}
	if r.Customer.ID == "" || r.Movie.ID == "" {
		return errors.New("rental must reference a customer and a movie")
	}
	if (r.DateReturned == nil) != (r.RentalFee == nil) {
		return errors.New("rental fee and return date must be set together")
	}
	if r.RentalFee != nil && r.RentalFee.IsNegative() {
		return errors.New("rental fee must not be negative")
	}
	return nil
}
