package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/ledger"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/returns"
)

type RentalReader interface {
	Get(ctx context.Context, id string) (models.Rental, error)
}

type RentalsController struct {
	Ledger RentalReader
	Log    *zap.Logger
}

// GET /api/rentals/:id
func (h *RentalsController) Detail(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return writeError(c, http.StatusBadRequest, string(returns.ErrInvalidArgument), "invalid id", "id")
	}

	rental, err := h.Ledger.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return writeError(c, http.StatusNotFound, string(returns.ErrNotFound), "rental not found", "")
		}
		h.Log.Error("rental detail", zap.String("rental_id", id), zap.Error(err))
		return writeError(c, http.StatusInternalServerError, codeInternal, "internal error", "")
	}
	return c.JSON(http.StatusOK, rental)
}
