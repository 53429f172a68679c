// Package registry holds the CoT router's concurrent table of connected
// peers: a map from connection id to a bounded outbound queue, guarded by
// an RWMutex and snapshotted under lock before any fan-out send happens
// outside of it.
package registry

import (
	"sort"
	"sync"
	"time"
)

// Peer is one registered connection's outbound side. Endpoint is an
// operator-facing address string (e.g. "tcp:203.0.113.5:41212") surfaced
// through Snapshot for the Marti clientEndPoints route. Subject is the
// verified mTLS peer certificate's CN, empty when the connection is
// plaintext or the peer presented no client certificate. ConnectedAt is the
// connection-epoch timestamp recorded at registration.
type Peer struct {
	ID          uint64
	Endpoint    string
	Subject     string
	ConnectedAt time.Time
	Send        chan []byte
}

// EndPoint is a point-in-time snapshot of one registered peer, safe to hand
// to a caller outside the registry's lock.
type EndPoint struct {
	ID          uint64
	Endpoint    string
	Subject     string
	ConnectedAt time.Time
}

// Registry is the concurrent map of ClientID -> outbound queue backing the
// CoT router. It holds no protocol knowledge; router.go layers slow-consumer
// policy and CoT-specific logging on top of it.
type Registry struct {
	mu    sync.RWMutex
	peers map[uint64]*Peer
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{peers: make(map[uint64]*Peer)}
}

// Register adds a peer with a queue of the given capacity and returns its
// outbound channel. subject is the peer's verified mTLS certificate CN, or
// "" for plaintext/unauthenticated connections. The connection-epoch
// timestamp is stamped as time.Now() at registration. Registering an id
// that already exists replaces it and closes the previous channel,
// mirroring the allocator's guarantee that a given id is never reused while
// that connection is still live.
func (r *Registry) Register(id uint64, endpoint, subject string, capacity int) chan []byte {
	send := make(chan []byte, capacity)

	r.mu.Lock()
	if prev, ok := r.peers[id]; ok {
		close(prev.Send)
	}
	r.peers[id] = &Peer{ID: id, Endpoint: endpoint, Subject: subject, ConnectedAt: time.Now(), Send: send}
	r.mu.Unlock()

	return send
}

// Unregister removes a peer and closes its outbound channel. It is a no-op
// if the id is not present (already removed, e.g. by a replacing Register).
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return
	}
	delete(r.peers, id)
	close(p.Send)
}

// Targets returns a snapshot of every registered outbound channel except
// exceptID (pass 0 to include all — ids start at 1). The snapshot is taken
// under RLock and the slice is safe to range over and send into after the
// lock is released, matching the lock-then-release-then-send shape used
// throughout this registry's fan-out paths.
func (r *Registry) Targets(exceptID uint64) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id == exceptID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Count returns the number of currently registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns a stable, ID-ordered list of every registered peer's
// endpoint, for the Marti clientEndPoints route.
func (r *Registry) Snapshot() []EndPoint {
	r.mu.RLock()
	out := make([]EndPoint, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, EndPoint{ID: p.ID, Endpoint: p.Endpoint, Subject: p.Subject, ConnectedAt: p.ConnectedAt})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
