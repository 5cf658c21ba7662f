package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncChatRequest is a no-op.
func (n *NoopRecorder) IncChatRequest(method string) {}

// IncChatRejected is a no-op.
func (n *NoopRecorder) IncChatRejected() {}

// ObserveChatDuration is a no-op.
func (n *NoopRecorder) ObserveChatDuration(duration time.Duration) {}

// IncLLMCall is a no-op.
func (n *NoopRecorder) IncLLMCall(status string) {}

// IncVINDecodeCacheHit is a no-op.
func (n *NoopRecorder) IncVINDecodeCacheHit() {}

// IncVINDecodeCacheMiss is a no-op.
func (n *NoopRecorder) IncVINDecodeCacheMiss() {}

// IncScanStarted is a no-op.
func (n *NoopRecorder) IncScanStarted() {}

// IncScanFinished is a no-op.
func (n *NoopRecorder) IncScanFinished(status string) {}

// IncMagicLinkRequested is a no-op.
func (n *NoopRecorder) IncMagicLinkRequested() {}

// IncMagicLinkVerified is a no-op.
func (n *NoopRecorder) IncMagicLinkVerified(status string) {}

// IncHistoryEventPublished is a no-op.
func (n *NoopRecorder) IncHistoryEventPublished(status string) {}

// IncHistoryEventProcessed is a no-op.
func (n *NoopRecorder) IncHistoryEventProcessed(status string) {}

// ObserveHistoryBatchSize is a no-op.
func (n *NoopRecorder) ObserveHistoryBatchSize(size int) {}

// ObserveHistoryBatchDuration is a no-op.
func (n *NoopRecorder) ObserveHistoryBatchDuration(duration time.Duration) {}

// SetHistoryQueueDepth is a no-op.
func (n *NoopRecorder) SetHistoryQueueDepth(depth int64) {}
