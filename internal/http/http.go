package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hlsmirror/go-hlsmirror/internal/config"
)

type ServerCtx struct {
	logger zerolog.Logger
	router *chi.Mux
	http   *http.Server
	root   string
}

// New builds the playback server for a mirrored tree. The root must be the
// same output directory the mirror engine wrote to, so playlists served
// locally reference the same relative paths they did on the origin. The
// server binds to loopback only.
func New(config *config.Server, root string) *ServerCtx {
	logger := log.With().Str("module", "http").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID) // Create a request ID for each request
	router.Use(middleware.RequestLogger(&logformatter{logger}))
	router.Use(middleware.Recoverer) // Recover from panics without crashing server

	// status page, not an index of contents
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		//nolint
		_, _ = fmt.Fprintf(w, "Root directory: %s", root)
	})

	// serve the mirrored files
	fs := http.FileServer(http.Dir(root))
	router.Get("/*", fs.ServeHTTP)

	return &ServerCtx{
		logger: logger,
		router: router,
		root:   root,
		http: &http.Server{
			Addr:    config.Addr(),
			Handler: router,
		},
	}
}

func (s *ServerCtx) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Panic().Err(err).Msg("unable to start http server")
		}
	}()
	s.logger.Info().Str("root", s.root).Msgf("http listening on %s", s.http.Addr)
}

func (s *ServerCtx) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.http.Shutdown(ctx)
}
