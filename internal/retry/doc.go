// Package retry keeps the registry of transfers that failed and may be
// retried by the user.
//
// Each entry moves through a small state machine keyed by task id:
//
//	absent -> failed -> uploading -> absent (success)
//	                              -> failed (failed again)
//
// The Coordinator notifies subscribers after every mutation. Listeners get no
// payload and call GetFiles for the current snapshot. Persist mirrors the
// registry into a Journal so entries survive restarts.
package retry
