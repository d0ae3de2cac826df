// Package registry implements the capability-indexed service directory.
//
// Services are registered with a fixed capability set and selected by
// requiring a capability subset. Selection ordering is deliberate: Healthy
// before Degraded, then least-recently-used to balance load, then
// registration order as a stable tie-break.
//
// A periodic health monitor demotes services one level per N consecutive
// probe failures (Healthy -> Degraded -> Unavailable). Unavailable services
// are excluded from selection but remain registered and visible via List,
// distinguishing "temporarily down" from "removed".
package registry
