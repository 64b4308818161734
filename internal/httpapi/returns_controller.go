package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/auth"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/models"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/returns"
)

// HeaderInventoryReconciliation is set to "pending" when a return was
// recorded but the movie stock still has to be corrected.
const HeaderInventoryReconciliation = "X-Inventory-Reconciliation"

type ReturnProcessor interface {
	ProcessReturn(ctx context.Context, req returns.Request, identity *auth.Identity) (models.Rental, error)
}

type ReturnReq struct {
	CustomerID string `json:"customerId" validate:"required,uuid"`
	MovieID    string `json:"movieId" validate:"required,uuid"`
}

type ReturnsController struct {
	Svc ReturnProcessor
	Log *zap.Logger
}

// POST /api/returns
func (h *ReturnsController) Create(c echo.Context) error {
	var req ReturnReq
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, string(returns.ErrInvalidArgument), "invalid JSON", "")
	}
	if err := c.Validate(&req); err != nil {
		return writeValidationError(c, err)
	}

	rental, err := h.Svc.ProcessReturn(c.Request().Context(), returns.Request{
		CustomerID: req.CustomerID,
		MovieID:    req.MovieID,
	}, identityFrom(c))
	if err != nil {
		if returns.Code(err) != returns.ErrInventoryReconciliationFailed {
			return writeServiceError(c, h.Log, err)
		}
		// The return itself is committed; only the stock count lags behind.
		h.Log.Error("return recorded with pending inventory reconciliation",
			zap.String("rental_id", rental.ID),
			zap.String("movie_id", rental.Movie.ID),
			zap.String("req_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		c.Response().Header().Set(HeaderInventoryReconciliation, "pending")
	}

	return c.JSON(http.StatusOK, rental)
}
