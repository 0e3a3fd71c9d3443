// Package event provides the pub-sub bus that decouples runctl components.
//
// The orchestrator publishes run lifecycle events, the completion
// dispatcher publishes output and "run complete" events, and the analyze
// scheduler publishes batch progress. The CLI subscribes to stream logs and
// print progress without the producers knowing about it.
//
// # Main Types
//
//   - [Event]: EventType() and Timestamp()
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [Handler]: func(Event)
//
// # Event Types
//
// Run lifecycle: [RunStartedEvent], [RunLogEvent], [RunURLDetectedEvent],
// [RunExitedEvent], [RunStoppedEvent], [RunCompleteEvent].
//
// Output persistence: [OutputWrittenEvent], [OutputWriteFailedEvent].
//
// Analyze queue: [AnalyzeBatchStartedEvent], [AnalyzeProgressEvent],
// [AnalyzeJobFailedEvent].
//
// # Delivery
//
// Handlers run synchronously on the publisher's goroutine: type-specific
// handlers first, then SubscribeAll handlers, each in registration order.
// A panicking handler is recovered and logged; delivery continues.
package event
