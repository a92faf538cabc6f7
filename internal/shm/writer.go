package shm

import (
	"math"
	"sync/atomic"
)

// Writer is the producer side of the transport. Exactly one process may hold
// a Writer for a given segment; the location daemon constructs it, any other
// writer is a bug. Publication is wait-free: the writer never observes or
// waits on readers.
type Writer struct {
	seg      *segment
	sequence uint32 // stamped into WorldState.UpdateSequence, monotonic
}

// NewWriter creates the segment (replacing any stale one) and marks the
// producer alive.
func NewWriter(path string) (*Writer, error) {
	seg, err := createSegment(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{seg: seg}
	atomic.StoreUint64(seg.u64(offAccuracyBits), math.Float64bits(1.0))
	atomic.StoreUint32(seg.u32(offProducerAlive), 1)
	return w, nil
}

// Publish commits one (WorldState, ContextFrame) pair to the next ring slot.
// The slot sequence is bumped to odd before the payload stores and to even
// after them; sync/atomic's sequential consistency provides the release
// ordering between the sequence stores and the payload copy.
func (w *Writer) Publish(ws *WorldState, cf *ContextFrame) {
	w.sequence++
	ws.UpdateSequence = w.sequence

	k := atomic.LoadUint32(w.seg.u32(offWriteIndex)) % RingSize
	base := slotOffset(k)
	seq := w.seg.u32(base + entrySeqOff)

	atomic.AddUint32(seq, 1) // odd: write in progress
	encodeWorldState(w.seg.data[base+entryStateOff:], ws)
	encodeContextFrame(w.seg.data[base+entryContextOff:], cf)
	atomic.AddUint32(seq, 1) // even: stable

	atomic.StoreUint32(w.seg.u32(offWriteIndex), (k+1)%RingSize)
	atomic.AddUint32(w.seg.u32(offGlobalSequence), 1)
	atomic.AddUint64(w.seg.u64(offTotalUpdates), 1)
	if !cf.IsZero() {
		atomic.AddUint64(w.seg.u64(offTotalContext), 1)
	}
}

// SignalAlive re-asserts the producer liveness flag.
func (w *Writer) SignalAlive() {
	atomic.StoreUint32(w.seg.u32(offProducerAlive), 1)
}

// SetActivePlugin mirrors the active provider name into the header under
// the header seqlock.
func (w *Writer) SetActivePlugin(name string) {
	seq := w.seg.u32(offPluginSeq)
	atomic.AddUint32(seq, 1)
	PutFixedString(w.seg.data[offActivePlugin:offActivePlugin+ActivePluginLen], name)
	atomic.AddUint32(seq, 1)
}

// SetAccuracyLevel stores the accuracy level, clamped to [0.0, 1.0].
func (w *Writer) SetAccuracyLevel(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	atomic.StoreUint64(w.seg.u64(offAccuracyBits), math.Float64bits(level))
}

// AccuracyLevel returns the currently stored accuracy level.
func (w *Writer) AccuracyLevel() float64 {
	return math.Float64frombits(atomic.LoadUint64(w.seg.u64(offAccuracyBits)))
}

// TotalUpdates returns the lifetime publish count.
func (w *Writer) TotalUpdates() uint64 {
	return atomic.LoadUint64(w.seg.u64(offTotalUpdates))
}

// Close clears the liveness flag, unmaps the segment and removes it. Segment
// removal must be the last thing the producer does, after every publish.
func (w *Writer) Close() error {
	if w.seg == nil || w.seg.data == nil {
		return nil
	}
	atomic.StoreUint32(w.seg.u32(offProducerAlive), 0)
	if err := w.seg.close(); err != nil {
		return err
	}
	return w.seg.remove()
}
