package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// testClient is a synthetic CoT source for smoke-testing a running broker:
// it dials the TCP ingress and emits a Position Location Information (PLI)
// event on a fixed cadence, walking a straight line from an origin point so
// a second connected client can visibly observe movement.
type testClient struct {
	uid      string
	callsign string
	lat, lon float64
	step     float64
	interval time.Duration
	log      *logrus.Entry
}

func newTestClient(callsign string, log *logrus.Entry) *testClient {
	return &testClient{
		uid:      uuid.NewString(),
		callsign: callsign,
		lat:      38.8895,
		lon:      -77.0353,
		step:     0.0001,
		interval: time.Second,
		log:      log.WithField("callsign", callsign),
	}
}

// run dials addr and writes PLI events until ctx is canceled or the
// connection fails. Mirrors the reader/writer-free, single-goroutine ticker
// loop the teacher uses for its virtual client: connect, announce, loop,
// clean up on cancellation.
func (tc *testClient) run(ctx context.Context, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	tc.log.WithField("addr", addr).Info("test client connected")
	defer tc.log.Info("test client disconnected")

	ticker := time.NewTicker(tc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		tc.lat += tc.step
		tc.lon += tc.step

		event := tc.pliEvent(time.Now())
		if _, err := conn.Write([]byte(event)); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
}

// pliEvent renders a minimal, well-formed CoT PLI event for the given
// timestamp. The broker treats this as an opaque payload; the schema here
// only needs to be valid enough for a real CoT consumer to render it.
func (tc *testClient) pliEvent(now time.Time) string {
	start := now.UTC().Format(time.RFC3339)
	stale := now.Add(2 * time.Minute).UTC().Format(time.RFC3339)
	return fmt.Sprintf(
		`<event version="2.0" uid="%s" type="a-f-G-U-C" how="m-g" time="%s" start="%s" stale="%s">`+
			`<point lat="%.6f" lon="%.6f" hae="0.0" ce="9999999.0" le="9999999.0"/>`+
			`<detail><contact callsign="%s"/></detail>`+
			`</event>`,
		tc.uid, start, start, stale, tc.lat, tc.lon, tc.callsign,
	)
}

// RunTestClient is the entry point wired from the CLI's optional demo mode:
// it runs a single synthetic CoT source against addr until ctx is canceled,
// logging connect/disconnect/failure rather than returning them to a
// caller that has nothing further to do with them.
func RunTestClient(ctx context.Context, addr, callsign string, log *logrus.Entry) {
	tc := newTestClient(callsign, log)
	if err := tc.run(ctx, addr); err != nil && ctx.Err() == nil {
		tc.log.WithError(err).Warn("test client stopped")
	}
}
