package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type logformatter struct {
	logger zerolog.Logger
}

func (l *logformatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	logger := l.logger.With().
		Str("id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote", r.RemoteAddr).
		Logger()

	return &logentry{logger: logger}
}

type logentry struct {
	logger zerolog.Logger
}

func (e *logentry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	e.logger.Debug().
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("request complete")
}

func (e *logentry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("request handler panicked")
}
