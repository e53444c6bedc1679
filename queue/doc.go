// Package queue defines the unit of asynchronous work and the contract every
// queue backend implements.
//
// A Job carries an ordered Payload and a delivery policy (MaxAttempts and
// VisibilityTimeout). Backends hand out jobs in FIFO order per queue; a
// dequeued job is leased to a single consumer until it is acknowledged or its
// visibility timeout elapses, at which point it becomes redeliverable.
//
// Each dequeue stamps a fresh DeliveryID on the job. Acknowledge only removes
// the job when the DeliveryID matches the current lease, so an acknowledgment
// that arrives after the job was redelivered is a no-op that returns false.
//
// Implementations:
//   - queue/memory: single process, zero latency
//   - queue/redis: shared across nodes
//   - storage/badger: durable single node
package queue
