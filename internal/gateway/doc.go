// Package gateway exposes the engine over HTTP: task submission, task and
// service inspection, aggregated health, and a websocket stream of engine
// events. It owns no orchestration logic; every request translates directly
// into a call on the engine components.
package gateway
