package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// newEcho creates a configured Echo instance.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	return e
}

// authOK accepts Authorization: Bearer <pwd>, X-Auth-Token or ?password=.
// An empty expected password disables the check.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == expected {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if tok := strings.TrimSpace(ah[len("Bearer "):]); tok == expected {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == expected {
		return true
	}
	return false
}

// requireAuth guards a route group with authOK.
func requireAuth(password string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authOK(c.Request(), password) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}
