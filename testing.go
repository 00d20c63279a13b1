package xcoro

import "sync"

// RecordingObserver is an Observer that records every observation for
// assertions in tests, instead of forwarding to a Metrics instance.
type RecordingObserver struct {
	mu sync.Mutex

	Completions []CompletionRecord
	ActiveIOs   []int64
	QueueDepths []uint32
}

// CompletionRecord is one recorded ObserveCompletion call.
type CompletionRecord struct {
	Tag       uint8
	Bytes     uint64
	LatencyNs uint64
	Success   bool
}

// NewRecordingObserver creates an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (o *RecordingObserver) ObserveCompletion(tag uint8, bytes uint64, latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Completions = append(o.Completions, CompletionRecord{Tag: tag, Bytes: bytes, LatencyNs: latencyNs, Success: success})
}

func (o *RecordingObserver) ObserveActiveIOs(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ActiveIOs = append(o.ActiveIOs, n)
}

func (o *RecordingObserver) ObserveQueueDepth(depth uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.QueueDepths = append(o.QueueDepths, depth)
}

// CompletionCount returns the number of completions recorded so far.
func (o *RecordingObserver) CompletionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Completions)
}

// ErrorCount returns the number of recorded completions marked failed.
func (o *RecordingObserver) ErrorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.Completions {
		if !c.Success {
			n++
		}
	}
	return n
}

// MaxObservedActiveIOs returns the largest ActiveIOs value observed, or 0
// if none were recorded.
func (o *RecordingObserver) MaxObservedActiveIOs() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	var max int64
	for _, n := range o.ActiveIOs {
		if n > max {
			max = n
		}
	}
	return max
}

var _ Observer = (*RecordingObserver)(nil)
