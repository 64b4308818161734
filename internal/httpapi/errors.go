package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/returns"
)

const codeInternal = "INTERNAL"

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeError(c echo.Context, status int, code, msg, field string) error {
	return c.JSON(status, ErrorBody{Code: code, Message: msg, Field: field})
}

func statusFor(code returns.ErrCode) int {
	switch code {
	case returns.ErrUnauthorized:
		return http.StatusUnauthorized
	case returns.ErrInvalidArgument:
		return http.StatusBadRequest
	case returns.ErrNotFound:
		return http.StatusNotFound
	case returns.ErrAlreadyProcessed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError turns a workflow error into its HTTP classification.
// Unclassified errors are logged and hidden behind a generic message.
func writeServiceError(c echo.Context, log *zap.Logger, err error) error {
	code := returns.Code(err)
	if code == "" || code == returns.ErrInventoryReconciliationFailed {
		log.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("req_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		return writeError(c, http.StatusInternalServerError, codeInternal, "internal error", "")
	}
	return writeError(c, statusFor(code), string(code), returns.Message(err), returns.Field(err))
}

func writeValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return writeError(c, http.StatusBadRequest, string(returns.ErrInvalidArgument),
			validationMessage(fe), fe.Field())
	}
	return writeError(c, http.StatusBadRequest, string(returns.ErrInvalidArgument), "validation error", "")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s is not a valid id", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
