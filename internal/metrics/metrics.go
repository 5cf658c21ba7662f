// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Chat metrics
	IncChatRequest(method string) // classification method that settled the question
	IncChatRejected()
	ObserveChatDuration(duration time.Duration)

	// LLM metrics
	IncLLMCall(status string) // status: "success" or "failed"

	// VIN decode metrics
	IncVINDecodeCacheHit()
	IncVINDecodeCacheMiss()

	// Scanner metrics
	IncScanStarted()
	IncScanFinished(status string) // status: "completed" or "failed"

	// Auth metrics
	IncMagicLinkRequested()
	IncMagicLinkVerified(status string) // status: "success", "invalid", "expired"

	// History pipeline metrics
	IncHistoryEventPublished(status string) // status: "success" or "dropped"
	IncHistoryEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveHistoryBatchSize(size int)
	ObserveHistoryBatchDuration(duration time.Duration)
	SetHistoryQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
