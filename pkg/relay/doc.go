// Copyright 2024-2026 Aiku AI

// Package relay implements the message classification, correlation, and
// routing engine of the Telegram→Discord relay.
//
// An inbound event flows RECEIVED → DEDUP-CHECKED → REPLY-RESOLVED →
// CLASSIFIED → DISPATCHED → RECORDED and settles as forwarded, suppressed,
// or failed. Suppression is ordinary control flow (duplicates, empty
// messages, unroutable categories), never an error.
//
// # Core Types
//
// [Router] is the orchestrator. It owns all mutable process state (the
// in-memory [Deduplicator] and the [SignalSequencer] counter) and consumes
// events strictly in arrival order, since reply and edit correlation depend
// on earlier events already having produced mappings.
//
// [Classify] is the pure content classifier: ordered rule evaluation over
// a closed [Category] set, first match wins, total with [CategoryOther] as
// fallback.
//
// [CorrelationStore] is the router's view of durable state. The store is
// the only cross-process source of truth: the dedup set is deliberately
// process-scoped, and the signal sequence is re-seeded from the store's
// persisted maximum at every startup.
//
// # Failure Posture
//
// The router never retries and never rolls back. A store write failing
// after a successful post is logged as "delivered but unrecorded": a
// duplicate post after the next restart is preferred over a lost mapping.
//
// # Sub-packages
//
//   - store persists the three correlation tables over SQLite.
//   - telegramgw adapts an MTProto session to the source gateway.
//   - discordgw adapts the Discord REST API to the destination gateway.
package relay
