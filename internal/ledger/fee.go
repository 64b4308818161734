package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// DaysBetween counts the whole days elapsed from dateOut to returnedAt.
// Partial days are dropped; a returnedAt before dateOut counts as zero.
func DaysBetween(dateOut, returnedAt time.Time) int64 {
	elapsed := returnedAt.Sub(dateOut)
	if elapsed <= 0 {
		return 0
	}
	return int64(elapsed / day)
}

// RentalFee charges dailyRate for every whole day the movie was out.
func RentalFee(dateOut, returnedAt time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(DaysBetween(dateOut, returnedAt)).Mul(dailyRate)
}
