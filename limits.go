package main

import "time"

// Operational limits and protocol defaults — named constants for values
// spec.md §3/§4.2/§6 call out as the reference design's defaults.
const (
	// defaultTCPPort is the plain-TCP CoT stream port.
	defaultTCPPort = 8087
	// defaultTLSPort is the TLS CoT stream port.
	defaultTLSPort = 8089
	// defaultMartiPort is the Marti HTTP control-plane port.
	defaultMartiPort = 8443

	// defaultMaxClients bounds the registry; admission pauses once hit.
	defaultMaxClients = 512

	// defaultOutboundQueueCapacity is the bounded per-peer fan-out queue depth.
	defaultOutboundQueueCapacity = 100

	// defaultMinEventBytes / defaultMaxEventBytes bound a single framed event.
	defaultMinEventBytes = 32
	defaultMaxEventBytes = 64 * 1024

	// defaultClientIdleTimeout closes a connection with no inbound bytes.
	defaultClientIdleTimeout = 300 * time.Second
	// defaultHandshakeTimeout bounds the TLS handshake.
	defaultHandshakeTimeout = 10 * time.Second
	// defaultWriteTimeout bounds a single outbound write.
	defaultWriteTimeout = 30 * time.Second
	// defaultDrainTimeout is the grace period given to live connections on shutdown.
	defaultDrainTimeout = 2 * time.Second
	// admissionRetryInterval is how long the accept loop pauses at the max_clients ceiling.
	admissionRetryInterval = 1 * time.Second

	// slowConsumerThreshold is the number of consecutive full-queue pushes
	// within slowConsumerWindow before a peer is flagged unhealthy.
	slowConsumerThreshold = 3
	// slowConsumerWindow is the rolling window consecutive-full counts reset against.
	slowConsumerWindow = 10 * time.Second
)
