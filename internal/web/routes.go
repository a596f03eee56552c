package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/consensus"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	d := s.deps

	// A nil *Gallery must not become a non-nil Labeler.
	var labeler consensus.Labeler
	if d.Gallery != nil {
		labeler = d.Gallery
	}

	punchesHandler := handlers.NewPunchesHandler(d.Service, s.logger)
	recognitionsHandler := handlers.NewRecognitionsHandler(d.Service, labeler,
		s.config.Recognition.MinFrames, s.config.Recognition.Tolerance, s.logger)
	recordsHandler := handlers.NewRecordsHandler(d.Service, s.logger)
	registrantsHandler := handlers.NewRegistrantsHandler(d.Store, d.Gallery, s.logger)
	daysHandler := handlers.NewDaysHandler(d.Service)
	eventsHandler := handlers.NewEventsHandler(d.Broadcaster)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Long-lived stream, no request timeout.
		r.Get("/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Registrants
			r.Get("/registrants", registrantsHandler.List)
			r.Post("/registrants", registrantsHandler.Create)

			// Punches
			r.Post("/punches", punchesHandler.Create)
			r.Post("/recognitions", recognitionsHandler.Create)

			// Ledger
			r.Get("/attendance", recordsHandler.List)
			r.Get("/attendance/{name}/{date}", recordsHandler.Get)

			// Daily initializer
			r.Post("/days/today", daysHandler.EnsureToday)
		})
	})
}
