package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	handlers := NewHandlers(d)

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(handlers.logger))
	r.Use(MetricsMiddleware(handlers.metrics))

	// Public endpoints
	r.Get("/health", handlers.Health)
	r.Method("GET", "/metrics", handlers.metrics.Handler())

	limit := 60
	if d.Config.RateLimit > 0 {
		limit = d.Config.RateLimit
	}
	limiter := NewRateLimiter(limit, time.Minute, handlers.clock)

	// API v1 routes (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JSONContentType)
		r.Use(AuthMiddleware(d.Config))
		r.Use(RateLimitMiddleware(limiter))

		r.Post("/align", handlers.Align)
		r.Post("/inquiry", handlers.Inquiry)
		r.Get("/inquiries", handlers.Inquiries)
		r.Get("/data", handlers.Data)

		r.Post("/todos", handlers.CreateTodo)
		r.Post("/todos/complete", handlers.CompleteTodoByName)
		r.Post("/todos/{id}/complete", handlers.CompleteTodo)
		r.Post("/todos/{id}/commitment", handlers.TodoCommitment)
		r.Post("/milestones", handlers.CreateMilestone)
		r.Post("/milestones/{id}/progress", handlers.MilestoneProgress)
		r.Put("/memos/{key}", handlers.PutMemo)
		r.Post("/delete", handlers.Delete)

		r.Post("/chat", handlers.Chat)
		r.Post("/plan", handlers.Plan)
	})

	return r
}
