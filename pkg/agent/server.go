// Package agent serves the bench over HTTP so scenarios can be started
// and inspected remotely.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/sirupsen/logrus"
)

// Store persists runs started through the agent. *db.DB satisfies it.
type Store interface {
	RecordScenario(name string, params db.JSONData, bench harness.Config, result scenario.Result, units map[string]string) (*db.Run, error)
	ListRuns(filter db.RunFilter) ([]*db.Run, error)
}

// Server represents the agent server
type Server struct {
	config     Config
	bench      harness.Config
	store      Store
	httpServer *http.Server
	logger     logrus.FieldLogger
	logFile    io.Closer
}

// NewServer creates a new agent server. A nil store runs scenarios
// without recording them and disables /runs.
func NewServer(config Config, bench harness.Config, store Store, logger logrus.FieldLogger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := bench.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bench: %w", err)
	}

	server := &Server{
		config: config,
		bench:  bench,
		store:  store,
	}

	base := logrus.StandardLogger()
	if l, ok := logger.(*logrus.Logger); ok {
		base = l
	}
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileLogger := logrus.New()
		fileLogger.SetOutput(f)
		fileLogger.SetLevel(base.GetLevel())
		fileLogger.SetFormatter(base.Formatter)
		base = fileLogger
		server.logFile = f
	}
	if logger == nil || config.LogFile != "" {
		logger = base
	}
	server.logger = logger.WithField("component", "agent")

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.Handler(),
		ErrorLog:     newErrorLog(base),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	if config.TLSEnabled() {
		tlsConfig, err := config.LoadTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		server.httpServer.TLSConfig = tlsConfig
	}

	return server, nil
}

// Handler returns the routes of the agent
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.loggingMiddleware(healthHandler))
	mux.HandleFunc("/sysinfo", s.loggingMiddleware(sysinfoHandler))
	mux.HandleFunc("/scenarios", s.loggingMiddleware(scenariosHandler))
	mux.HandleFunc("/run", s.loggingMiddleware(s.runHandler))
	mux.HandleFunc("/runs", s.loggingMiddleware(s.runsHandler))
	return mux
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown
func (s *Server) Start() error {
	var err error
	if s.config.TLSEnabled() {
		s.logger.WithFields(logrus.Fields{
			"port": s.config.Port,
			"mtls": s.config.MutualTLS(),
		}).Info("starting agent server with TLS")
		// certificates are already in TLSConfig
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		s.logger.WithField("port", s.config.Port).Info("starting agent server")
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down agent server")
	err := s.httpServer.Shutdown(ctx)
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
	return err
}

func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"remote":   r.RemoteAddr,
			"client":   clientCert,
			"duration": time.Since(start),
		}).Info("request")
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// newErrorLog routes net/http server errors into logrus
func newErrorLog(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0)
}
