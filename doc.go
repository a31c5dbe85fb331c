// Package sagaflow is a saga-style flow orchestration core. A flow executes
// a sequence of commands through a dispatch bus, registering a compensating
// command for every side effect; when a later step fails the engine unwinds
// the stack in reverse order so the system converges back to a consistent
// state. Flows checkpoint change-tracked state into a versioned snapshot
// store and can fan out child flows, suspending on a wait condition until
// all (or any) of them report completion.
//
// The root Service wires the reference implementations together: an
// in-memory snapshot store, an in-memory wait-condition registry, a timing
// wheel for join timeouts and a queue-backed event channel for child
// completions. Every piece is replaceable through options.
package sagaflow
