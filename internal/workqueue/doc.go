// Package workqueue runs background tasks on a bounded queue with a fixed
// number of workers and capped, jittered exponential retry.
//
// The lifecycle manager uses it to delete superseded directory entries without
// blocking the caller of a state transition.
package workqueue
