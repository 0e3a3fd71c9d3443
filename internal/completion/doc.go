// Package completion finishes runs after their process exits.
//
// The Dispatcher marks the run done, hands its output to a background
// OutputWriter, invokes the single-use handler registered under the run's
// correlation key, resolves the run's Future, and publishes run.complete.
// Handler errors and write failures are contained: they are logged and
// surfaced as events, never returned to the process feed.
//
// A run that was stopped before its process exited goes through
// DispatchStopped instead. Its output is partial, so it is neither written
// nor handed to a handler.
package completion
