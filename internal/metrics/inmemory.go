package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ChatRequests        map[string]uint64
	ChatRejected        uint64
	ChatDurationCount   uint64
	ChatDurationTotalNs int64
	LLMCalls            map[string]uint64
	VINDecodeCacheHits  uint64
	VINDecodeCacheMiss  uint64
	ScansStarted        uint64
	ScansFinished       map[string]uint64
	MagicLinksRequested uint64
	MagicLinksVerified  map[string]uint64
	HistoryPublished    map[string]uint64
	HistoryProcessed    map[string]uint64
	HistoryBatchCount   uint64
	HistoryBatchTotal   uint64
	HistoryQueueDepth   int64
}

// InMemoryRecorder stores metrics in memory. Used by the /api/metrics
// endpoint and in tests.
type InMemoryRecorder struct {
	chatRejected        uint64
	chatDurationCount   uint64
	chatDurationTotalNs int64
	vinCacheHits        uint64
	vinCacheMisses      uint64
	scansStarted        uint64
	magicLinksRequested uint64
	historyBatchCount   uint64
	historyBatchTotal   uint64
	historyQueueDepth   int64

	mu                 sync.Mutex
	chatRequests       map[string]uint64
	llmCalls           map[string]uint64
	scansFinished      map[string]uint64
	magicLinksVerified map[string]uint64
	historyPublished   map[string]uint64
	historyProcessed   map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		chatRequests:       map[string]uint64{},
		llmCalls:           map[string]uint64{},
		scansFinished:      map[string]uint64{},
		magicLinksVerified: map[string]uint64{},
		historyPublished:   map[string]uint64{},
		historyProcessed:   map[string]uint64{},
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		ChatRequests:        copyCounters(m.chatRequests),
		ChatRejected:        atomic.LoadUint64(&m.chatRejected),
		ChatDurationCount:   atomic.LoadUint64(&m.chatDurationCount),
		ChatDurationTotalNs: atomic.LoadInt64(&m.chatDurationTotalNs),
		LLMCalls:            copyCounters(m.llmCalls),
		VINDecodeCacheHits:  atomic.LoadUint64(&m.vinCacheHits),
		VINDecodeCacheMiss:  atomic.LoadUint64(&m.vinCacheMisses),
		ScansStarted:        atomic.LoadUint64(&m.scansStarted),
		ScansFinished:       copyCounters(m.scansFinished),
		MagicLinksRequested: atomic.LoadUint64(&m.magicLinksRequested),
		MagicLinksVerified:  copyCounters(m.magicLinksVerified),
		HistoryPublished:    copyCounters(m.historyPublished),
		HistoryProcessed:    copyCounters(m.historyProcessed),
		HistoryBatchCount:   atomic.LoadUint64(&m.historyBatchCount),
		HistoryBatchTotal:   atomic.LoadUint64(&m.historyBatchTotal),
		HistoryQueueDepth:   atomic.LoadInt64(&m.historyQueueDepth),
	}
}

// IncChatRequest increments the counter for a classification method.
func (m *InMemoryRecorder) IncChatRequest(method string) {
	m.incLabeled(m.chatRequests, method)
}

// IncChatRejected increments the rejected-question counter.
func (m *InMemoryRecorder) IncChatRejected() {
	atomic.AddUint64(&m.chatRejected, 1)
}

// ObserveChatDuration records a chat round trip duration.
func (m *InMemoryRecorder) ObserveChatDuration(duration time.Duration) {
	atomic.AddUint64(&m.chatDurationCount, 1)
	atomic.AddInt64(&m.chatDurationTotalNs, duration.Nanoseconds())
}

// IncLLMCall increments the LLM call counter for a status.
func (m *InMemoryRecorder) IncLLMCall(status string) {
	m.incLabeled(m.llmCalls, status)
}

// IncVINDecodeCacheHit increments the VIN cache hit counter.
func (m *InMemoryRecorder) IncVINDecodeCacheHit() {
	atomic.AddUint64(&m.vinCacheHits, 1)
}

// IncVINDecodeCacheMiss increments the VIN cache miss counter.
func (m *InMemoryRecorder) IncVINDecodeCacheMiss() {
	atomic.AddUint64(&m.vinCacheMisses, 1)
}

// IncScanStarted increments the scan started counter.
func (m *InMemoryRecorder) IncScanStarted() {
	atomic.AddUint64(&m.scansStarted, 1)
}

// IncScanFinished increments the scan finished counter for a status.
func (m *InMemoryRecorder) IncScanFinished(status string) {
	m.incLabeled(m.scansFinished, status)
}

// IncMagicLinkRequested increments the magic link request counter.
func (m *InMemoryRecorder) IncMagicLinkRequested() {
	atomic.AddUint64(&m.magicLinksRequested, 1)
}

// IncMagicLinkVerified increments the verification counter for a status.
func (m *InMemoryRecorder) IncMagicLinkVerified(status string) {
	m.incLabeled(m.magicLinksVerified, status)
}

// IncHistoryEventPublished increments the publish counter for a status.
func (m *InMemoryRecorder) IncHistoryEventPublished(status string) {
	m.incLabeled(m.historyPublished, status)
}

// IncHistoryEventProcessed increments the processed counter for a status.
func (m *InMemoryRecorder) IncHistoryEventProcessed(status string) {
	m.incLabeled(m.historyProcessed, status)
}

// ObserveHistoryBatchSize records a flushed batch size.
func (m *InMemoryRecorder) ObserveHistoryBatchSize(size int) {
	atomic.AddUint64(&m.historyBatchCount, 1)
	atomic.AddUint64(&m.historyBatchTotal, uint64(size))
}

// ObserveHistoryBatchDuration is tracked only by external recorders.
func (m *InMemoryRecorder) ObserveHistoryBatchDuration(duration time.Duration) {}

// SetHistoryQueueDepth records the current stream backlog.
func (m *InMemoryRecorder) SetHistoryQueueDepth(depth int64) {
	atomic.StoreInt64(&m.historyQueueDepth, depth)
}

func (m *InMemoryRecorder) incLabeled(counters map[string]uint64, label string) {
	m.mu.Lock()
	counters[label]++
	m.mu.Unlock()
}

func copyCounters(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
