package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rzbill/evpipe/internal/wire"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Options configure the wire client.
type Options struct {
	// Addr is the server's host:port.
	Addr string
	// DialTimeout bounds connection establishment. Default 5s.
	DialTimeout time.Duration
	// Logger is optional.
	Logger logpkg.Logger
}

// Client speaks the framed wire protocol and implements logstore.Store and
// logstore.Admin. One request is in flight at a time; concurrent callers
// serialize on the connection. Connectivity failures surface as
// ErrUnavailable and the next call redials.
type Client struct {
	opts   Options
	logger logpkg.Logger

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

var (
	_ logstore.Store = (*Client)(nil)
	_ logstore.Admin = (*Client)(nil)
)

// New returns a client that dials lazily on first use.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("client"))
	}
	return &Client{opts: opts, logger: logger}
}

// Dial returns a connected client.
func Dial(opts Options) (*Client, error) {
	c := New(opts)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the connection. The client stays usable; the next call
// redials.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	c.w = nil
	return err
}

func (c *Client) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}
	d := c.opts.DialTimeout
	if d <= 0 {
		d = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", c.opts.Addr, d)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", logstore.ErrUnavailable, c.opts.Addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	c.w = bufio.NewWriter(conn)
	c.logger.With(logpkg.Str("addr", c.opts.Addr)).Debug("client.connect")
	return nil
}

func (c *Client) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.r = nil
	c.w = nil
}

func (c *Client) ioError(ctx context.Context, err error) error {
	c.resetLocked()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", logstore.ErrUnavailable, err)
}

// call performs one lockstep request/response exchange. block > 0 widens the
// read deadline for server-side blocking operations.
func (c *Client) call(ctx context.Context, op byte, req, out any, block time.Duration) error {
	var body []byte
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(); err != nil {
		return err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if block > 0 {
		deadline = time.Now().Add(block + 10*time.Second)
	}
	_ = c.conn.SetDeadline(deadline)

	// Cancelling ctx tears the connection down so blocked reads return
	// promptly instead of waiting out the deadline.
	if ctx.Done() != nil {
		conn := c.conn
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-stop:
			}
		}()
	}

	if err := wire.WriteFrame(c.w, op, body); err != nil {
		return c.ioError(ctx, err)
	}
	if err := c.w.Flush(); err != nil {
		return c.ioError(ctx, err)
	}
	typ, respBody, err := wire.ReadFrame(c.r)
	if err != nil {
		return c.ioError(ctx, err)
	}
	if typ == wire.FrameError {
		var eb wire.ErrorBody
		if err := json.Unmarshal(respBody, &eb); err != nil {
			c.resetLocked()
			return fmt.Errorf("%w: malformed error frame", logstore.ErrUnavailable)
		}
		return wire.ErrorForCode(eb.Code, eb.Message)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.resetLocked()
			return fmt.Errorf("%w: malformed response", logstore.ErrUnavailable)
		}
	}
	return nil
}
