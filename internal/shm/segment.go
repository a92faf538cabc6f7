package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultPath returns the canonical segment path on this host.
func DefaultPath() string {
	return "/dev/shm/" + SegmentName
}

// segment is a mapped shared memory region. The producer maps it read-write;
// consumers map it read-only. Field access goes through typed pointers into
// the mapping; Go's sync/atomic operations are sequentially consistent,
// which subsumes the acquire/release ordering the protocol requires.
type segment struct {
	path     string
	data     []byte
	writable bool
}

// createSegment creates the backing file with create-or-replace semantics:
// any pre-existing segment of the same name is removed first. Failure here
// is fatal to the producer.
func createSegment(path string) (*segment, error) {
	_ = unix.Unlink(path)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, SegmentSize); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("size segment %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, SegmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		unix.Unlink(path)
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	return &segment{path: path, data: data, writable: true}, nil
}

// openSegment maps an existing segment read-only. Failure here is fatal to
// the consumer.
func openSegment(path string) (*segment, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat segment %s: %w", path, err)
	}
	if st.Size < SegmentSize {
		unix.Close(fd)
		return nil, fmt.Errorf("segment %s is %d bytes, want at least %d", path, st.Size, SegmentSize)
	}
	data, err := unix.Mmap(fd, 0, SegmentSize, unix.PROT_READ, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	return &segment{path: path, data: data, writable: false}, nil
}

func (s *segment) close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	return err
}

func (s *segment) remove() error {
	return unix.Unlink(s.path)
}

func (s *segment) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[off]))
}

func (s *segment) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[off]))
}

func slotOffset(k uint32) int {
	return headerSize + int(k)*entrySize
}

// readActivePlugin snapshots the active plugin name under the header
// seqlock so a concurrent rename is never observed torn. The retry count is
// bounded: a producer that died mid-rename must not wedge its readers, and
// a possibly stale name is acceptable for a diagnostic field.
func (s *segment) readActivePlugin() string {
	var buf [ActivePluginLen]byte
	for attempt := 0; attempt < maxStabilizeAttempts; attempt++ {
		s1 := atomic.LoadUint32(s.u32(offPluginSeq))
		if s1&1 == 1 {
			continue
		}
		copy(buf[:], s.data[offActivePlugin:offActivePlugin+ActivePluginLen])
		s2 := atomic.LoadUint32(s.u32(offPluginSeq))
		if s1 == s2 {
			break
		}
	}
	return FixedString(buf[:])
}
