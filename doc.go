// Package ckpt provides durable checkpoint storage for stateful graph and
// agent execution engines. It records execution snapshots grouped by
// lineage, serializes them into a stable byte format, and guards every
// lineage with its own lock so unrelated executions never contend.
//
// ckpt is a library, not a service. Pick a backend, hand it to the engine,
// and call Release once a lineage is finished.
//
// # Quick Start
//
//	s := memory.New()
//	addr, err := s.Put(ctx, checkpoint.Address{LineageID: "run-42"}, cp)
//	latest, err := s.Get(ctx, checkpoint.Address{LineageID: "run-42"})
//	tag, err := s.Release(ctx, addr)
//
// # Architecture
//
// The checkpoint package defines the Store contract, the Address tuple and
// the ordered History container. Backends live under store/: memory for a
// single process, redis for multi-process deployments, where a distributed
// lock keyed by lineage serializes read-modify-write cycles, and bun for
// PostgreSQL, where a transaction-scoped advisory lock plays that role.
// The observability package wraps any of them with tracing, metrics and
// logging.
//
// Runtime values that cannot be persisted directly (in-flight futures,
// response wrappers) are converted to plain snapshot maps by the state
// package before they are encoded.
package ckpt
