package mirror

import (
	"fmt"
	"sync"

	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
)

// NewTestVolume builds and attaches n in-memory replicas to a fresh Online
// Volume, for use by this module's own tests and by downstream consumers
// exercising the Backend surface without a real ublk device or backing
// files. Grounded on the teacher's testing.go (NewMockBackend): an
// always-available exported constructor for a ready-to-use test double,
// generalized here from one backend to a full N-replica volume.
func NewTestVolume(name string, n int, size int64, blockSize int) *Volume {
	v := NewVolume(name, n, "", NoOpObserver{})
	for i := 0; i < n; i++ {
		r := replica.AttachLocalMemory("test", fmt.Sprintf("r%d", i), size, blockSize)
		if err := v.attach(r); err != nil {
			panic(err) // geometry is self-consistent by construction
		}
	}
	return v
}

// FaultyDevice wraps a Device and injects ErrExhausted or a fixed hard
// error on a configurable number of calls, used to exercise runBranch's
// retry/backoff path and recordOutcome's worst-status aggregation without
// a real failing backend. Grounded on the teacher's MockBackend call-
// counting fields, generalized from call counting to fault injection.
type FaultyDevice struct {
	replica.Device

	mu           sync.Mutex
	failsLeft    int
	failWithHard error
}

// NewFaultyDevice wraps dev so its next failCount ReadAt/WriteAt calls
// return ErrExhausted (or failWithHard, if non-nil) before passing
// through to dev.
func NewFaultyDevice(dev replica.Device, failCount int, failWithHard error) *FaultyDevice {
	return &FaultyDevice{Device: dev, failsLeft: failCount, failWithHard: failWithHard}
}

func (f *FaultyDevice) nextFault() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failsLeft <= 0 {
		return nil
	}
	f.failsLeft--
	if f.failWithHard != nil {
		return f.failWithHard
	}
	return replica.ErrExhausted
}

func (f *FaultyDevice) ReadAt(p []byte, off int64) (int, error) {
	if err := f.nextFault(); err != nil {
		return 0, err
	}
	return f.Device.ReadAt(p, off)
}

func (f *FaultyDevice) WriteAt(p []byte, off int64) (int, error) {
	if err := f.nextFault(); err != nil {
		return 0, err
	}
	return f.Device.WriteAt(p, off)
}

var _ replica.Device = (*FaultyDevice)(nil)
