package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leeluca/seon-sub000/internal/middleware"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Auth        *middleware.Auth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/signin", d.AuthHandler.SignIn)
	e.POST("/signup", d.AuthHandler.SignUp)
	e.GET("/status", d.AuthHandler.Status)
	e.GET("/refresh", d.AuthHandler.Refresh)
	e.POST("/signout", d.AuthHandler.SignOut)
	e.GET("/jwks", d.AuthHandler.JWKS)

	credentials := e.Group("/credentials")
	credentials.Use(d.Auth.RequireAuth)
	credentials.GET("/sync", d.AuthHandler.SyncCredentials)
	credentials.GET("/db", d.AuthHandler.DBCredentials)
}
