// Package events implements the engine's event bus.
//
// The bus is deliberately small: synchronous delivery, registration-order
// fan-out, and trailing-wildcard patterns ("task.*"). Everything that wants
// to observe the engine (gateway WebSocket stream, logging hooks, tests)
// subscribes here instead of hooking into components directly.
//
// Two guarantees matter to consumers:
//
//   - Events for the same task are delivered in the order they were emitted.
//     No ordering is promised between events of different tasks.
//   - A panicking handler never breaks delivery to the remaining handlers.
//     The panic surfaces as a diagnostic "error" event instead.
package events
