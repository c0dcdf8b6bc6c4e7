// Package compilequeue serializes compile-and-test jobs against a single
// shared build container. There is exactly one consumer; at most one job
// runs at any instant across the whole process.
//
// Jobs are ordered by priority (ties broken FIFO); this implementation
// floats repair attempts ahead of fresh work by setting priority to the
// attempt number, so a task close to finishing never waits behind a batch
// of fresh generation attempts.
package compilequeue
