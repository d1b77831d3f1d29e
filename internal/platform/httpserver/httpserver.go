package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Server is an http.Server with the timeouts every service shares.
type Server struct {
	HTTP    *http.Server
	service string
}

type Options struct {
	Addr        string
	ServiceName string
	// Logger receives net/http's internal errors when set.
	Logger *zap.Logger
	Router chi.Router
}

func New(opts Options) *Server {
	var handler http.Handler = opts.Router
	if opts.Router == nil {
		handler = chi.NewRouter()
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if opts.Logger != nil {
		srv.ErrorLog = zap.NewStdLog(opts.Logger.Named("http"))
	}
	return &Server{HTTP: srv, service: opts.ServiceName}
}

// Start blocks until the server fails or Shutdown is called, in which case
// it returns http.ErrServerClosed.
func (s *Server) Start(log *zap.Logger) error {
	log.Info("http server starting", zap.String("service", s.service), zap.String("addr", s.HTTP.Addr))
	err := s.HTTP.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("http server stopped", zap.String("service", s.service))
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTP.Shutdown(ctx)
}
