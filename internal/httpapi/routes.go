package httpapi

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/auth"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/returns"
)

const identityKey = "identity"

// Deps are the handlers and collaborators the HTTP surface is built from.
type Deps struct {
	Returns *ReturnsController
	Rentals *RentalsController
	Gate    *auth.Gate
	Log     *zap.Logger
}

// NewServer builds the echo instance with middleware and routes.
func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	RegisterMiddlewares(e, d.Log)
	Register(e, d)
	return e
}

func Register(e *echo.Echo, d Deps) {
	e.GET("/health", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	api := e.Group("/api")
	api.Use(IdentityGate(d.Gate))

	api.POST("/returns", d.Returns.Create)
	api.GET("/rentals/:id", d.Rentals.Detail)
}

// IdentityGate accepts the token from x-auth-token or an Authorization
// bearer header and stores the resolved *auth.Identity on the context.
func IdentityGate(gate *auth.Gate) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		TokenLookup: "header:x-auth-token,header:Authorization:Bearer ",
		ContextKey:  identityKey,
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			id, err := gate.Verify(token)
			if err != nil {
				return nil, err
			}
			return id, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return writeError(c, http.StatusUnauthorized, string(returns.ErrUnauthorized), "unauthenticated", "")
		},
	})
}

func identityFrom(c echo.Context) *auth.Identity {
	id, _ := c.Get(identityKey).(*auth.Identity)
	return id
}
