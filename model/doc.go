// Package model defines the shared leaf types of the sagaflow engine: flow
// status values and immutable flow positions. Heavier runtime structures
// (snapshots, wait conditions, flow contexts) live in the runtime packages
// that own their lifecycle.
package model
