package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/omegabingo/card-reservation/internal/handler"
	"github.com/omegabingo/card-reservation/internal/middleware"
)

// RegisterRoutes registers routes that need neither a session nor
// authentication. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the storefront endpoints. Every route runs
// behind EnsureSessionKey so each visitor gets a stable session cookie
// on first contact; the mutation endpoints additionally run behind the
// rate limiter.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, s *handler.SelectionHandler, limiter echo.MiddlewareFunc) {
	pub := e.Group("/v1", middleware.EnsureSessionKey())

	pub.GET("/cards", p.GetCards)
	pub.GET("/cards/:number", p.GetCard)
	pub.GET("/lookup/phone/:phone", p.LookupPhone)

	sel := pub.Group("/selection")
	sel.GET("", s.Get)
	sel.DELETE("", s.Clear)

	// Mutations are where scripted card-grabbing would hit, so only
	// these carry the token bucket.
	sel.POST("/toggle", s.Toggle, limiter)
	sel.POST("/checkout", s.Checkout, limiter)
	sel.POST("/revalidate", s.Revalidate, limiter)
	sel.POST("/submit", s.Submit, limiter)
}

// RegisterAdmin registers admin login plus the JWT-protected
// confirmation and reporting endpoints.
func RegisterAdmin(e *echo.Echo, a *handler.AuthHandler, ad *handler.AdminHandler, jwtSecret string) {
	e.POST("/v1/auth/login", a.Login)

	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ADMIN"))

	g.GET("/me", a.Me)
	g.GET("/pending", ad.Pending)
	g.GET("/sales", ad.ListSales)
	g.GET("/stats", ad.Stats)
	g.POST("/reservations/:id/confirm", ad.Confirm)
	g.DELETE("/reservations/:id", ad.Reject)
	g.DELETE("/sales/:id", ad.DeleteSale)
	g.POST("/store/toggle", ad.ToggleStore)
}
