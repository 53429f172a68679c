package main

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// listenerKind distinguishes the plaintext TCP ingress from the TLS one,
// for logging and metrics labels only.
type listenerKind string

const (
	listenerTCP listenerKind = "tcp"
	listenerTLS listenerKind = "tls"
)

// Listener runs a single accept loop (plaintext or TLS) and hands each
// accepted connection to a connHandler, subject to the server's admission
// control: a hard cap on concurrent clients, enforced with a limiter that
// retries admission on a steady cadence rather than busy-spinning, per
// spec.md §4.1.
type Listener struct {
	kind     listenerKind
	ln       net.Listener
	tlsConf  *tls.Config
	router   *Router
	cfg      ServerConfig
	log      *logrus.Entry
	ids      *clientIDAllocator
	limiter  *rate.Limiter
	maxConns int

	wg sync.WaitGroup
}

// NewListener binds addr and wraps it for the given kind. When tlsConf is
// non-nil the listener terminates TLS itself (rather than layering
// tls.NewListener) so handshake failures can be classified and logged with
// spec.md §7's TLSHandshakeError taxonomy instead of being swallowed by a
// bare Accept error.
func NewListener(kind listenerKind, addr string, tlsConf *tls.Config, router *Router, cfg ServerConfig, ids *clientIDAllocator, log *logrus.Entry) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return &Listener{
		kind:     kind,
		ln:       ln,
		tlsConf:  tlsConf,
		router:   router,
		cfg:      cfg,
		log:      log.WithFields(logrus.Fields{"listener": string(kind), "addr": addr}),
		ids:      ids,
		limiter:  rate.NewLimiter(rate.Every(admissionRetryInterval), 1),
		maxConns: cfg.MaxClients,
	}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve runs the accept loop until ctx is canceled or the listener is
// closed. Temporary Accept errors (e.g. transient EMFILE) are retried with
// bounded exponential backoff instead of tearing down the whole listener.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	var backoff time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.wg.Wait()
				return nil
			}
			if ne, ok := err.(net.Error); ok && (ne.Timeout() || ne.Temporary()) {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
					if backoff > 500*time.Millisecond {
						backoff = 500 * time.Millisecond
					}
				}
				l.log.WithError(err).Debug("temporary accept error, backing off")
				time.Sleep(backoff)
				continue
			}
			l.wg.Wait()
			return err
		}
		backoff = 0

		if !l.admit() {
			l.log.WithField("endpoint", conn.RemoteAddr().String()).Warn("rejecting connection: max clients reached")
			_ = conn.Close()
			listenerRejectedTotal.WithLabelValues(string(l.kind)).Inc()
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

// admit enforces max_clients from within the accept loop: when the server
// is at capacity it pauses the loop for the admission limiter's delay (up to
// one admission_retry_interval), checks once more for a freed slot (a client
// disconnecting), then rejects rather than queue indefinitely.
func (l *Listener) admit() bool {
	if l.maxConns <= 0 {
		return true
	}
	if l.router.Count() < l.maxConns {
		return true
	}
	reservation := l.limiter.Reserve()
	if !reservation.OK() {
		return false
	}
	time.Sleep(reservation.Delay())
	return l.router.Count() < l.maxConns
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	var subject string

	if l.tlsConf != nil {
		hsTimeout := time.Duration(l.cfg.HandshakeTimeoutSeconds) * time.Second
		if hsTimeout <= 0 {
			hsTimeout = defaultHandshakeTimeout
		}
		hsCtx, cancel := context.WithTimeout(ctx, hsTimeout)
		defer cancel()

		tlsConn := tls.Server(conn, l.tlsConf)
		_ = conn.SetDeadline(time.Now().Add(hsTimeout))
		if err := tlsConn.HandshakeContext(hsCtx); err != nil {
			hsErr := classifyTLSHandshakeError(conn.RemoteAddr().String(), err)
			l.log.WithError(hsErr).Warn("TLS handshake failed")
			tlsHandshakeFailuresTotal.WithLabelValues(hsErr.Reason.String()).Inc()
			_ = conn.Close()
			return
		}
		_ = conn.SetDeadline(time.Time{})
		subject = peerSubject(tlsConn.ConnectionState())
		conn = tlsConn
	}

	id := l.ids.allocate()
	h := newConnHandler(id, conn, l.router, l.cfg, subject, l.log)
	h.serve(ctx)
}
