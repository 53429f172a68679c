package main

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// connHandler is the per-connection task described in spec.md §4.4: one
// logical unit of work per accepted socket, split into a reader half (frame
// inbound bytes, route each event) and a writer half (drain the outbound
// queue to the socket), sharing a cancellation context. Neither half shares
// mutable state with the other beyond the socket and that context.
type connHandler struct {
	id      ClientID
	conn    net.Conn
	router  *Router
	log     *logrus.Entry
	subject string // mTLS peer certificate subject, if any

	idleTimeout   time.Duration
	writeTimeout  time.Duration
	minEventBytes int
	maxEventBytes int

	closeOnce sync.Once
}

func newConnHandler(id ClientID, conn net.Conn, router *Router, cfg ServerConfig, subject string, log *logrus.Entry) *connHandler {
	return &connHandler{
		id:            id,
		conn:          conn,
		router:        router,
		subject:       subject,
		idleTimeout:   time.Duration(cfg.ClientIdleTimeoutSeconds) * time.Second,
		writeTimeout:  defaultWriteTimeout,
		minEventBytes: cfg.MinEventBytes,
		maxEventBytes: cfg.MaxEventBytes,
		log:           log.WithField("client_id", id),
	}
}

// serve runs the connection's full lifecycle to completion: register,
// spawn the reader/writer pair, wait for both to finish, unregister, close.
// It blocks until the connection is done; callers run it in its own
// goroutine per accepted socket.
func (c *connHandler) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	endpoint := c.conn.RemoteAddr().String()
	send := c.router.Register(c.id, endpoint, c.subject)
	entry := c.log.WithField("endpoint", endpoint)
	if c.subject != "" {
		entry = entry.WithField("peer_subject", c.subject)
	}
	entry.Info("connection established")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, cancel, send)
	}()
	go func() {
		defer wg.Done()
		c.readLoop(ctx, cancel)
	}()
	wg.Wait()

	c.router.Unregister(c.id)
	c.log.Info("connection closed")
}

func (c *connHandler) closeConn() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readLoop reads bytes off the socket, runs them through the CoT framer,
// and routes each complete event. It enforces client_idle_timeout: no
// bytes within the window terminates the connection. When a read fails or
// idles out, readOnce asks the framer whether a partial event was left
// buffered and, if so, logs it as a TruncatedEvent per spec.md §4.5.
func (c *connHandler) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.closeConn()
	}()

	framer := NewCoTFramer(c.minEventBytes, c.maxEventBytes)
	buf := make([]byte, 32*1024)

	for {
		if ctx.Err() != nil {
			return
		}

		if c.readOnce(ctx, framer, buf) != nil {
			return
		}
	}
}

// readOnce performs a single read and feeds it through the framer, routing
// any completed events. It returns a non-nil error when the connection
// should be closed: a framing violation, a read failure, or (on the read
// error/EOF path) a truncated event left buffered by the framer.
func (c *connHandler) readOnce(ctx context.Context, framer *CoTFramer, buf []byte) error {
	if c.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}

	n, err := c.conn.Read(buf)
	if n > 0 {
		events, ferr := framer.Feed(buf[:n])
		for _, ev := range events {
			c.router.Route(c.id, ev)
		}
		if ferr != nil {
			c.log.WithError(ferr).Warn("framing error, closing connection")
			return ferr
		}
	}
	if err != nil {
		if ctx.Err() == nil {
			c.log.WithError(err).Debug("read error or idle timeout, closing connection")
		}
		if cerr := framer.Close(); cerr != nil {
			c.log.WithError(cerr).Warn("connection closed with a partial event buffered")
		}
		return err
	}
	return nil
}

// writeLoop drains the outbound queue to the socket, applying a write
// timeout per message. The channel is closed either by Router.Unregister
// (normal teardown or a slow-consumer eviction) or simply stops being read
// from once ctx is cancelled by the reader half.
func (c *connHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, send <-chan []byte) {
	defer func() {
		cancel()
		c.closeConn()
	}()

	for {
		select {
		case payload, ok := <-send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if _, err := c.conn.Write(payload); err != nil {
				c.log.WithError(err).Debug("write error, closing connection")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
