// Package bus implements a topic/queue message broker: clients publish
// messages to named topics, subscribe queues to them under one of three
// delivery disciplines, and receive bucketed deliveries over a small framed
// TCP protocol (see internal/packets). Message pages are cached in memory
// and loaded on demand from a pluggable PageRepo; a background flusher
// journals new messages and periodically snapshots queue state for crash
// recovery.
package bus
