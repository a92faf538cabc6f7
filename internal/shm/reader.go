package shm

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrNotAvailable is returned when no stable snapshot could be taken within
// the bounded retry budget. It is a transient condition, not a failure; the
// caller re-polls on its next tick.
var ErrNotAvailable = errors.New("shm: no stable snapshot available")

// maxStabilizeAttempts bounds how many times Snapshot retries a slot whose
// sequence is odd or changed mid-copy.
const maxStabilizeAttempts = 16

// Reader is a consumer handle on the transport. Any number of readers may
// coexist; none of them advances producer state. The advisory read_index
// header field exists for diagnostics only and a read-only mapping cannot
// update it.
type Reader struct {
	seg *segment
}

// NewReader maps an existing segment read-only.
func NewReader(path string) (*Reader, error) {
	seg, err := openSegment(path)
	if err != nil {
		return nil, err
	}
	return &Reader{seg: seg}, nil
}

// Snapshot copies the most recently published (WorldState, ContextFrame)
// pair out of the ring. It returns ErrNotAvailable when nothing has been
// published yet or when the slot could not be stabilised within the retry
// budget.
func (r *Reader) Snapshot() (WorldState, ContextFrame, error) {
	if atomic.LoadUint32(r.seg.u32(offGlobalSequence)) == 0 {
		return WorldState{}, ContextFrame{}, ErrNotAvailable
	}

	wi := atomic.LoadUint32(r.seg.u32(offWriteIndex))
	k := (wi + RingSize - 1) % RingSize
	base := slotOffset(k)
	seq := r.seg.u32(base + entrySeqOff)

	var stateBuf [worldStateSize]byte
	var contextBuf [contextFrameSize]byte
	for attempt := 0; attempt < maxStabilizeAttempts; attempt++ {
		s1 := atomic.LoadUint32(seq)
		if s1&1 == 1 {
			continue
		}
		copy(stateBuf[:], r.seg.data[base+entryStateOff:base+entryStateOff+worldStateSize])
		copy(contextBuf[:], r.seg.data[base+entryContextOff:base+entryContextOff+contextFrameSize])
		s2 := atomic.LoadUint32(seq)
		if s1 == s2 {
			return decodeWorldState(stateBuf[:]), decodeContextFrame(contextBuf[:]), nil
		}
	}
	return WorldState{}, ContextFrame{}, ErrNotAvailable
}

// ProducerAlive reports whether the producer has the liveness flag set.
func (r *Reader) ProducerAlive() bool {
	return atomic.LoadUint32(r.seg.u32(offProducerAlive)) != 0
}

// ActivePlugin returns the provider name mirrored into the header.
func (r *Reader) ActivePlugin() string {
	return r.seg.readActivePlugin()
}

// AccuracyLevel returns the accuracy level stored in the header.
func (r *Reader) AccuracyLevel() float64 {
	return math.Float64frombits(atomic.LoadUint64(r.seg.u64(offAccuracyBits)))
}

// GlobalSequence returns the producer's publish counter.
func (r *Reader) GlobalSequence() uint32 {
	return atomic.LoadUint32(r.seg.u32(offGlobalSequence))
}

// Stats returns the lifetime update and context-update counters.
func (r *Reader) Stats() (totalUpdates, totalContextUpdates uint64) {
	return atomic.LoadUint64(r.seg.u64(offTotalUpdates)),
		atomic.LoadUint64(r.seg.u64(offTotalContext))
}

// Close unmaps the segment. The backing file is left in place; only the
// producer removes it.
func (r *Reader) Close() error {
	return r.seg.close()
}
