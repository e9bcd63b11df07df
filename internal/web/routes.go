package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/web/handlers"
	"github.com/kozaktomas/face-auth/internal/web/static"
)

func (s *Server) setupRoutes() {
	sessionHandler := handlers.NewSessionHandler(s.session, s.logger)
	facesHandler := handlers.NewFacesHandler(s.session, s.faces, s.logger)
	eventsHandler := handlers.NewEventsHandler(s.session, s.logger)
	streamHandler := handlers.NewStreamHandler(s.session, s.logger)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Commands
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))

			r.Get("/session", sessionHandler.Get)
			r.Put("/session/mode", sessionHandler.SetMode)
			r.Post("/session/back", sessionHandler.Back)

			r.Post("/camera/start", sessionHandler.StartCamera)
			r.Post("/camera/stop", sessionHandler.StopCamera)

			r.Get("/faces", facesHandler.List)
			r.Post("/faces", facesHandler.Register)

			r.Get("/frame.jpg", streamHandler.Frame)
		})

		// Long-lived streams
		r.Get("/events", eventsHandler.Stream)
		r.Get("/stream.mjpg", streamHandler.MJPEG)
	})

	// Serve the embedded client
	s.router.Get("/", s.serveIndex)
	s.router.Handle("/*", http.FileServer(static.GetFileSystem()))
}

// serveIndex serves the client page
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.Index()
	if err != nil {
		s.logger.Error("client page missing", zap.Error(err))
		http.Error(w, "client not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}
