package replica

import "sync"

// shardSize is the size of each memory shard. Matches the teacher's
// backend.Memory: small enough to give parallel 4K random I/O good lock
// concurrency, large enough that a 1GiB device doesn't need too many mutexes.
const shardSize = 64 * 1024

// MemoryDevice is a RAM-backed Device, used for local replicas in tests and
// for the in-process "local" replica kind when no real file is configured.
// Sharded locking is carried over verbatim from the teacher's backend.Memory.
type MemoryDevice struct {
	data      []byte
	size      int64
	blockSize int
	shards    []sync.RWMutex
}

// NewMemoryDevice creates a zero-filled memory device of the given size.
func NewMemoryDevice(size int64, blockSize int) *MemoryDevice {
	numShards := (size + shardSize - 1) / shardSize
	if numShards < 1 {
		numShards = 1
	}
	return &MemoryDevice{
		data:      make([]byte, size),
		size:      size,
		blockSize: blockSize,
		shards:    make([]sync.RWMutex, numShards),
	}
}

func (m *MemoryDevice) shardRange(off, length int64) (start, end int) {
	start = int(off / shardSize)
	end = int((off + length - 1) / shardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

func (m *MemoryDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}
	if available := m.size - off; int64(len(p)) > available {
		p = p[:available]
	}
	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return n, nil
}

func (m *MemoryDevice) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, ErrExhausted
	}
	if available := m.size - off; int64(len(p)) > available {
		p = p[:available]
	}
	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
	return n, nil
}

func (m *MemoryDevice) Flush() error { return nil }

func (m *MemoryDevice) Unmap(off, length int64) error {
	if off >= m.size {
		return nil
	}
	end := off + length
	if end > m.size {
		end = m.size
	}
	start, endShard := m.shardRange(off, end-off)
	for i := start; i <= endShard; i++ {
		m.shards[i].Lock()
	}
	for i := off; i < end; i++ {
		m.data[i] = 0
	}
	for i := start; i <= endShard; i++ {
		m.shards[i].Unlock()
	}
	return nil
}

func (m *MemoryDevice) Reset() error { return nil }

func (m *MemoryDevice) Size() int64 { return m.size }

func (m *MemoryDevice) BlockSize() int { return m.blockSize }

func (m *MemoryDevice) Close() error {
	m.data = nil
	return nil
}

var _ Device = (*MemoryDevice)(nil)
