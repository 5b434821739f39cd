package replica

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a replica's I/O-selection participation state.
type State int32

const (
	// StateRW: eligible for both reads and writes.
	StateRW State = iota
	// StateWriteOnly: receives writes but not reads (used during rebuild).
	StateWriteOnly
	// StateErr: receives neither until re-added.
	StateErr
)

func (s State) String() string {
	switch s {
	case StateRW:
		return "RW"
	case StateWriteOnly:
		return "WriteOnly"
	case StateErr:
		return "Err"
	default:
		return "Unknown"
	}
}

// Locality distinguishes a replica anchored in a local logical-volume-store
// from one reached over the network.
type Locality int

const (
	Local Locality = iota
	Remote
)

// Replica is the Go realization of spec.md's base_bdev_info: one physical
// copy of a volume's data, with its donor-device identifier, descriptor, home
// goroutine, participation state, and (for remote replicas) fabric address.
type Replica struct {
	Name string // donor-device identifier name, e.g. "<lvs>/<replica>"
	UUID uuid.UUID

	Locality Locality
	LVS      string // local logical-volume-store name (local replicas)

	Address     string // remote address (remote replicas)
	NVMfPort    uint16
	ControlPort uint16
	RemoteNQN   string

	device Device
	home   *Home

	state atomic.Int32

	mu sync.Mutex
}

// New wraps an already-opened Device as a Replica bound to home, in the RW
// state (the state common attach assigns on success).
func New(name string, locality Locality, device Device, home *Home) *Replica {
	r := &Replica{Name: name, Locality: locality, device: device, home: home, UUID: uuid.New()}
	r.state.Store(int32(StateRW))
	return r
}

// State returns the replica's current participation state.
func (r *Replica) State() State {
	return State(r.state.Load())
}

// SetState transitions the replica's participation state. Safe to call from
// any goroutine: state is read on every channel's hot read/write path.
func (r *Replica) SetState(s State) {
	r.state.Store(int32(s))
}

// Device returns the underlying primitive surface. Only the replica's home
// goroutine (or a caller that has gone through Home.Do) should issue I/O
// against it directly; channel dispatch always does.
func (r *Replica) Device() Device {
	return r.device
}

// Size and BlockSize proxy to the underlying device, used when establishing
// or verifying a volume's geometry.
func (r *Replica) Size() int64     { return r.device.Size() }
func (r *Replica) BlockSize() int  { return r.device.BlockSize() }

// Close hands the descriptor back to the home goroutine for closure, per
// spec.md 4.A ("Close must be executed on the home thread"), and waits for
// it to complete.
func (r *Replica) Close() error {
	var closeErr error
	done := make(chan struct{})
	r.home.Post(func() {
		closeErr = r.device.Close()
		close(done)
	})
	<-done
	return closeErr
}

func (r *Replica) String() string {
	return fmt.Sprintf("replica(%s, %s)", r.Name, r.State())
}

// Home is the Go realization of a base device's "home thread": the single
// goroutine responsible for closing a descriptor, modeled as a mailbox
// channel rather than actual OS-thread affinity. Any goroutine may Post a
// job; jobs run FIFO on Home's own goroutine.
type Home struct {
	jobs chan func()
	done chan struct{}
}

// NewHome starts a home goroutine and returns a handle to it.
func NewHome() *Home {
	h := &Home{jobs: make(chan func(), 16), done: make(chan struct{})}
	go h.run()
	return h
}

func (h *Home) run() {
	for {
		select {
		case job := <-h.jobs:
			job()
		case <-h.done:
			// Drain any jobs queued before shutdown was requested.
			for {
				select {
				case job := <-h.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues a job to run on the home goroutine. If the caller is already
// running on the home goroutine this would deadlock; Post is only called
// from other goroutines (channel goroutines, control-plane goroutine).
func (h *Home) Post(job func()) {
	h.jobs <- job
}

// Stop terminates the home goroutine once queued jobs have drained.
func (h *Home) Stop() {
	close(h.done)
}
