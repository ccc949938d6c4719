package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzbill/evpipe/internal/metrics"
	"github.com/rzbill/evpipe/internal/service"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
	"github.com/rzbill/evpipe/pkg/producer"
)

// Server serves the REST gateway over a log store service. Producer
// endpoints envelope and append events; read endpoints expose entries,
// stats and a live SSE tail.
type Server struct {
	svc    *service.Service
	prod   *producer.Producer
	logger logpkg.Logger
	srv    *http.Server
	lis    net.Listener
}

// New creates a gateway server over svc with a default logger.
func New(svc *service.Service) *Server {
	return NewWithLogger(svc, logpkg.NewLogger())
}

// NewWithLogger creates a gateway server that logs through logger.
func NewWithLogger(svc *service.Service, logger logpkg.Logger) *Server {
	logger = logger.With(logpkg.Component("http"))
	s := &Server{
		svc:    svc,
		prod:   producer.New(svc, producer.Options{Logger: logger}),
		logger: logger,
	}
	s.srv = &http.Server{
		Handler: s.router(),
		// No write timeout: tail connections stay open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	r.GET("/v1/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/logs/:log/events", s.handlePublish)
	v1.POST("/events/batch", s.handlePublishBatch)
	v1.GET("/logs/:log/entries", s.handleEntries)
	v1.GET("/logs/:log/stats", s.handleStats)
	v1.GET("/logs/:log/tail", s.handleTail)
	v1.GET("/logs/:log/groups", s.handleGroups)
	v1.GET("/logs/:log/groups/:group/pending", s.handlePending)
	v1.POST("/logs/:log/groups/:group/reclaim", s.handleReclaim)
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully. Request contexts derive from ctx so open tails end with the
// server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http.listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		s.logger.Info("http.stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the listener without waiting for in-flight requests.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// httpStatus maps store errors onto response codes. Unrecognized errors are
// internal.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, logstore.ErrNoLog), errors.Is(err, logstore.ErrNoGroup):
		return http.StatusNotFound
	case errors.Is(err, logstore.ErrGroupExists):
		return http.StatusConflict
	case errors.Is(err, logstore.ErrBadStart):
		return http.StatusBadRequest
	case errors.Is(err, logstore.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
