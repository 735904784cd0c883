// Package server is the HTTP transport of the Mirrorcast gateway.
//
// One process serves four surfaces: the multipart conversation upload that
// streams SSE progress events back on its own response body, the video
// artifact range server, the health and metrics endpoints, and the static
// browser playback client.
//
// The server speaks HTTP/2 — h2c by default so SSE streaming and parallel
// range requests work without TLS termination in front, or h2 over TLS
// when certificates are configured.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mirrorcast/mirrorcast/internal/assetstore"
	"github.com/mirrorcast/mirrorcast/internal/config"
	"github.com/mirrorcast/mirrorcast/internal/health"
	"github.com/mirrorcast/mirrorcast/internal/observe"
	"github.com/mirrorcast/mirrorcast/internal/pipeline"
)

// shutdownTimeout bounds graceful drain on exit.
const shutdownTimeout = 15 * time.Second

// maxUploadBytes caps a conversation clip upload. A minute of webm opus is
// well under a megabyte; this leaves headroom for uncompressed wav.
const maxUploadBytes = 32 << 20

// Server wires the HTTP surfaces together. Construct with [New].
type Server struct {
	cfg     config.ServerConfig
	pipe    *pipeline.Pipeline
	store   *assetstore.Store
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger

	// portraitsDir and voicesDir back the asset listing endpoints. Empty
	// disables the respective endpoint.
	portraitsDir string
	voicesDir    string

	httpSrv *http.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAssetDirs enables the portrait and voice listing endpoints, backed by
// the given directories.
func WithAssetDirs(portraits, voices string) Option {
	return func(s *Server) {
		s.portraitsDir = portraits
		s.voicesDir = voices
	}
}

// New creates a server. The health handler may be nil to disable /health.
func New(cfg config.ServerConfig, pipe *pipeline.Pipeline, store *assetstore.Store, h *health.Handler, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		pipe:    pipe,
		store:   store,
		health:  h,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full route tree wrapped in the observability
// middleware. Exposed for tests; Run uses it internally.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /conversation/stream", s.handleStream)
	mux.HandleFunc("GET /videos/{id}", s.handleVideo)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.portraitsDir != "" {
		mux.HandleFunc("GET /assets/portraits", s.listAssets(s.portraitsDir, ".png", ".jpg", ".jpeg"))
	}
	if s.voicesDir != "" {
		mux.HandleFunc("GET /assets/voices", s.listAssets(s.voicesDir, ".wav", ".mp3"))
	}
	if s.cfg.WebDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.WebDir)))
	}

	root := observe.Middleware(s.metrics)(mux)
	if s.cfg.Protocol != config.ProtocolH2 {
		// Cleartext HTTP/2 for direct (proxy-less) deployments; HTTP/1.1
		// clients still work through the same handler.
		root = h2c.NewHandler(root, &http2.Server{})
	}
	return root
}

// Run serves until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
		// Streams stay open for the whole turn; only bound the prologue.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.Protocol == config.ProtocolH2 {
			s.httpSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("http server listening",
		"addr", s.cfg.ListenAddr,
		"protocol", string(protocolOrDefault(s.cfg.Protocol)))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func protocolOrDefault(p config.Protocol) config.Protocol {
	if p == "" {
		return config.ProtocolH2C
	}
	return p
}

// writeJSONError answers a request with a JSON error body. Only usable
// before any streaming output has started.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
