package vapi

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Api struct {
	Api    huma.API
	Router *chi.Mux
}

// NewApi builds the router and the huma API on top of it. Router-level
// middlewares (the session middleware in particular) must be passed here
// because chi refuses Use after routes are mounted.
func NewApi(sessionCookie string, middlewares ...func(http.Handler) http.Handler) *Api {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	for _, mw := range middlewares {
		router.Use(mw)
	}

	config := huma.DefaultConfig("vakil", "1.0.0")
	config.Info.Description = "Session-authenticated chat with Google Gemini using each user's own API key."

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"session": {
			Type:        "apiKey",
			In:          "cookie",
			Name:        sessionCookie,
			Description: "Session cookie set after Google login",
		},
	}

	api := humachi.New(router, config)

	return &Api{Api: api, Router: router}
}
