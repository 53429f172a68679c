package main

import (
	"time"

	"github.com/sirupsen/logrus"

	"omnitak/internal/registry"
)

// Router is the CoT message broker's fan-out core: a registry of connected
// peers, each with a bounded outbound queue, plus the slow-consumer policy
// that evicts a peer whose queue stays full. It holds no knowledge of the
// wire format — route accepts an already-framed event as raw bytes.
type Router struct {
	reg           *registry.Registry
	slowConsumers *slowConsumerTracker
	queueCapacity int
	log           *logrus.Entry
}

// NewRouter returns a Router with the given per-peer outbound queue
// capacity.
func NewRouter(queueCapacity int, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		reg:           registry.New(),
		slowConsumers: newSlowConsumerTracker(slowConsumerThreshold, slowConsumerWindow),
		queueCapacity: queueCapacity,
		log:           log.WithField("component", "router"),
	}
}

// Register adds a new peer to the router and returns its outbound queue.
// subject is the peer's verified mTLS certificate CN, or "" for plaintext
// or unauthenticated connections; it is recorded on the ClientRegistration
// alongside the connection-epoch timestamp, per spec.md §3/§4.3. The
// connection handler (conn.go) drains the returned channel and writes each
// payload to the socket.
func (rt *Router) Register(id ClientID, endpoint, subject string) chan []byte {
	send := rt.reg.Register(uint64(id), endpoint, subject, rt.queueCapacity)
	fields := logrus.Fields{"client_id": id, "endpoint": endpoint, "clients": rt.reg.Count()}
	if subject != "" {
		fields["peer_subject"] = subject
	}
	rt.log.WithFields(fields).Info("client registered")
	routerClientsGauge.Set(float64(rt.reg.Count()))
	return send
}

// Unregister removes a peer and its queue from the router.
func (rt *Router) Unregister(id ClientID) {
	rt.reg.Unregister(uint64(id))
	rt.slowConsumers.forget(id)
	rt.log.WithFields(logrus.Fields{"client_id": id, "clients": rt.reg.Count()}).Info("client unregistered")
	routerClientsGauge.Set(float64(rt.reg.Count()))
}

// Route fans payload out to every registered peer except exceptID (the
// sender), per spec.md §4.2's blind-fan-out rule: the router does not
// inspect or filter by event content. A peer that crosses the
// slow-consumer threshold is unregistered on the spot — closing its
// outbound channel, which is what actually signals that peer's writer half
// to terminate (see §9: the Router never holds a handle to a handler, only
// to the sender-half of its queue). Route returns the ClientIDs evicted
// this way, for logging and tests.
func (rt *Router) Route(exceptID ClientID, payload []byte) (slow []ClientID) {
	targets := rt.reg.Targets(uint64(exceptID))
	now := time.Now()

	routed := 0
	for _, peer := range targets {
		id := ClientID(peer.ID)
		if trySend(peer.Send, payload) {
			rt.slowConsumers.recordSuccess(id)
			routed++
			continue
		}
		routerDroppedTotal.Inc()
		if rt.slowConsumers.recordDrop(id, now) {
			slow = append(slow, id)
			rt.log.WithFields(logrus.Fields{"client_id": id}).Warn("slow consumer, disconnecting")
			routerSlowDisconnectsTotal.Inc()
			rt.reg.Unregister(uint64(id))
			rt.slowConsumers.forget(id)
		}
	}

	routerRoutedTotal.Add(float64(routed))
	if len(targets) > 0 {
		rt.log.WithFields(logrus.Fields{"sender": exceptID, "targets": len(targets), "routed": routed, "slow": len(slow)}).Debug("routed event")
	}
	if len(slow) > 0 {
		routerClientsGauge.Set(float64(rt.reg.Count()))
	}
	return slow
}

// Count returns the number of currently registered clients.
func (rt *Router) Count() int {
	return rt.reg.Count()
}

// Snapshot returns the client endpoints for the Marti clientEndPoints route.
func (rt *Router) Snapshot() []registry.EndPoint {
	return rt.reg.Snapshot()
}
