// Package batcher is the debounced message batching engine.
//
// Messages are appended to a durable per-conversation queue and counted in a
// durable status row. Each active conversation owns one poll timer; on every
// tick the conversation is checked for readiness (volume above threshold, or
// quiet for longer than the quiet window) and, when ready, its queued prefix is
// dispatched to the reply service as one batch. Timers are re-derived from the
// status store on startup, so pending work survives restarts.
//
// Delivery contract: message receipt is durable, reply delivery is best effort.
// A batch whose reply call fails is consumed and not re-queued.
package batcher
