package wireserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rzbill/evpipe/internal/service"
	logpkg "github.com/rzbill/evpipe/pkg/log"
)

// Server owns the TCP listener and serves the framed wire protocol over the
// embedded service. Each connection is handled request/response in lockstep
// by its own goroutine.
type Server struct {
	svc    *service.Service
	logger logpkg.Logger

	mu     sync.Mutex
	lis    net.Listener
	cancel context.CancelFunc
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// New constructs a wire server over the service.
func New(svc *service.Service, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("wire"))
	}
	return &Server{svc: svc, logger: logger, conns: map[net.Conn]struct{}{}}
}

// Listen binds to addr. Use Addr to recover the bound address when addr
// carries port 0.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	return nil
}

// Addr returns the bound listener address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Serve accepts connections until ctx is done or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.lis
	s.mu.Unlock()
	if l == nil {
		return errors.New("wire server: not listening")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	s.logger.With(logpkg.Str("addr", l.Addr().String())).Info("wire.listening")
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.ioLoop(ctx, conn)
		}()
	}
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close stops the listener, cancels in-flight blocking waits, and closes
// every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	lis := s.lis
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if lis != nil {
		_ = lis.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// ioLoop reads request frames and writes one response frame per request
// until the peer hangs up.
func (s *Server) ioLoop(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	remote := conn.RemoteAddr().String()
	s.logger.With(logpkg.Str("remote", remote)).Debug("wire.accept")

	for {
		op, body, err := s.readRequest(r)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				s.logger.With(logpkg.Str("remote", remote), logpkg.Err(err)).Debug("wire.read_end")
			}
			return
		}
		if err := s.respond(ctx, w, op, body); err != nil {
			return
		}
	}
}
