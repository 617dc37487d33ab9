package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/pdfmirror/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/pdfmirror/internal/api/middlewares"
	"github.com/markdave123-py/pdfmirror/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, log *slog.Logger, files handlers.FileStore, ing handlers.Ingester, texts handlers.TextReader) *Server {
	storageHandler := handlers.NewStorageHandler(files, ing, cfg.MaxUploadBytes)
	textHandler := handlers.NewTextHandler(texts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(log.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	// Static assets
	r.Get("/", serveFile(filepath.Join(cfg.PublicDir, "index.html")))
	r.Get("/favicon.ico", serveFile(filepath.Join(cfg.PublicDir, "money.png")))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/storage", func(storage chi.Router) {
		storage.Get("/", storageHandler.ListFiles)
		storage.Get("/file", storageHandler.GetFile)
		storage.Post("/file", storageHandler.UploadFile)
	})

	r.Get("/text", textHandler.GetText)
	r.Get("/text/", textHandler.GetText)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

func serveFile(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
