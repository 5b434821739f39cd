package mirror

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/longhorn-io/go-longhorn-bdev/internal/channel"
	"github.com/longhorn-io/go-longhorn-bdev/internal/logging"
	"github.com/longhorn-io/go-longhorn-bdev/internal/rebuild"
	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
	"github.com/longhorn-io/go-longhorn-bdev/internal/snapshot"
)

// State is a Volume's place in spec.md 4.E's state machine:
// Configuring -> Online -> Offline -> (freed).
type State int

const (
	Configuring State = iota
	Online
	Offline
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "Configuring"
	case Online:
		return "Online"
	case Offline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// Volume is the Go realization of spec.md §3's Volume: a named logical
// block device backed by N synchronously replicated copies. It owns every
// channel and replica beneath it and refers to neither a registry nor a
// frontend, so it can be constructed, driven and torn down independently
// of both (the registry and the ublk export are both optional consumers).
type Volume struct {
	name      string
	n         int
	blockSize int
	blockCnt  int64
	baseDir   string

	mu         sync.Mutex
	state      State
	membership []*replica.Replica
	channels   []*channel.Channel

	// opMu serializes pause-driven control operations (Snapshot, online
	// replica add) against each other, distinct from mu: mu is only ever
	// held briefly to mutate membership/state, never across the
	// pause-work-unpause round trip a control operation performs.
	opMu sync.Mutex

	nextChannelID atomic.Int64

	observer Observer
	logger   *logging.Logger
}

// NewVolume creates a Volume in the Configuring state, declaring n replicas.
// baseDir anchors any local-file replicas this volume attaches.
func NewVolume(name string, n int, baseDir string, observer Observer) *Volume {
	if observer == nil {
		observer = NoOpObserver{}
	}
	return &Volume{
		name:     name,
		n:        n,
		baseDir:  baseDir,
		state:    Configuring,
		observer: observer,
		logger:   logging.Default().WithDevice(0),
	}
}

// Name satisfies internal/registry.Entry.
func (v *Volume) Name() string { return v.name }

// State returns the volume's current lifecycle state.
func (v *Volume) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Membership returns a snapshot of the volume's current replica list.
func (v *Volume) Membership() []*replica.Replica {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*replica.Replica, len(v.membership))
	copy(out, v.membership)
	return out
}

// BlockSize and Size report the volume's established geometry (spec.md §3:
// "All replicas of a Volume report identical block size and block count at
// attach time; otherwise attach fails").
func (v *Volume) BlockSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.blockSize
}

func (v *Volume) Size() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.blockCnt * int64(v.blockSize)
}

// snapshotChannels returns the volume's current channel list.
func (v *Volume) snapshotChannels() []*channel.Channel {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*channel.Channel, len(v.channels))
	copy(out, v.channels)
	return out
}

// NewChannel creates and registers a new VolumeChannel seeded with the
// volume's current membership (spec.md §3: "a volume channel's sub-channel
// set mirrors the volume's membership at the instant the channel was
// created"). The frontend adapter calls this once per ublk hardware queue;
// ReadAt/WriteAt/etc (the Backend surface) use a single lazily-created
// default channel.
func (v *Volume) NewChannel() *channel.Channel {
	v.mu.Lock()
	members := make([]*replica.Replica, len(v.membership))
	copy(members, v.membership)
	v.mu.Unlock()

	id := v.nextChannelID.Add(1)
	ch := channel.New(fmt.Sprintf("%s/ch%d", v.name, id), members, v.observer)

	v.mu.Lock()
	v.channels = append(v.channels, ch)
	v.mu.Unlock()
	return ch
}

// defaultChannel lazily creates the channel ReadAt/WriteAt/Flush/Discard
// submit through, matching spec.md §3's "created lazily when a thread
// first requests I/O to the volume".
func (v *Volume) defaultChannel() *channel.Channel {
	v.mu.Lock()
	if len(v.channels) > 0 {
		ch := v.channels[0]
		v.mu.Unlock()
		return ch
	}
	v.mu.Unlock()
	return v.NewChannel()
}

// attach is the common replica-attach path (spec.md 4.F): verify geometry,
// insert at the membership tail, and if this completes the declared
// membership, transition Configuring -> Online.
func (v *Volume) attach(r *replica.Replica) error {
	v.mu.Lock()
	if len(v.membership) == 0 {
		v.blockSize = r.BlockSize()
		v.blockCnt = r.Size() / int64(r.BlockSize())
	} else if r.BlockSize() != v.blockSize || r.Size()/int64(r.BlockSize()) != v.blockCnt {
		v.mu.Unlock()
		return NewVolumeError("attach", v.name, CodeInvalidArgument,
			fmt.Sprintf("replica %s geometry (block_size=%d, blocks=%d) does not match volume (block_size=%d, blocks=%d)",
				r.Name, r.BlockSize(), r.Size()/int64(r.BlockSize()), v.blockSize, v.blockCnt))
	}
	v.membership = append(v.membership, r)
	becameOnline := v.state == Configuring && len(v.membership) == v.n
	if becameOnline {
		v.state = Online
	}
	channels := make([]*channel.Channel, len(v.channels))
	copy(channels, v.channels)
	v.mu.Unlock()

	for _, ch := range channels {
		done := make(chan struct{})
		ch.AddReplica(r, func() { close(done) })
		<-done
	}
	if becameOnline {
		v.logger.Infof("volume %s online with %d replicas", v.name, v.n)
	}
	return nil
}

// AddLocalReplica implements spec.md 4.F's "Add local replica": synthesize
// a local device identifier from lvs+replica name and go through the
// common attach path with state=RW, or through onlineAdd when the volume is
// already Online.
func (v *Volume) AddLocalReplica(lvs, replicaName string, size int64, blockSize int) error {
	v.mu.Lock()
	online := v.state == Online
	v.mu.Unlock()

	r, err := replica.AttachLocalFile(v.baseDir, lvs, replicaName, size, blockSize)
	if err != nil {
		return WrapError("add_local_replica", err)
	}
	if online {
		return v.onlineAdd(r)
	}
	return v.attach(r)
}

// AddRemoteReplica implements spec.md 4.F's "Add remote replica".
func (v *Volume) AddRemoteReplica(address string, nvmfPort, controlPort uint16, lvs, name, namePrefix string) error {
	v.mu.Lock()
	online := v.state == Online
	v.mu.Unlock()

	r, err := replica.AttachRemote(address, nvmfPort, controlPort, lvs, name, namePrefix)
	if err != nil {
		return WrapError("add_remote_replica", err)
	}
	if online {
		return v.onlineAdd(r)
	}
	return v.attach(r)
}

// onlineAdd adds a replica to an Online volume: append as WriteOnly, pause,
// snapshot every existing replica, rebuild the new replica from the first
// other RW member's snapshot (rebuildLocalReplica), mark it RW, unpause.
// There is no relink step: the new replica is not linked to the snapshot
// tip. On failure the new replica stays in the membership with state Err.
func (v *Volume) onlineAdd(newReplica *replica.Replica) error {
	newReplica.SetState(replica.StateWriteOnly)

	v.mu.Lock()
	v.membership = append(v.membership, newReplica)
	channels := make([]*channel.Channel, len(v.channels))
	copy(channels, v.channels)
	v.mu.Unlock()

	for _, ch := range channels {
		done := make(chan struct{})
		ch.AddReplica(newReplica, func() { close(done) })
		<-done
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	snapName := fmt.Sprintf("rebuild-%s-%d", newReplica.Name, time.Now().UnixNano())
	v.observer.ObserveRebuild(true, false, false)
	var rebuildErr error
	v.withPause(func() {
		existing := v.Membership()
		donor := firstOtherRW(existing, newReplica.Name)
		if donor == nil {
			rebuildErr = NewVolumeError("online_add", v.name, CodeDeviceFailed, "no RW donor replica available for rebuild")
			return
		}

		local := &snapshot.FileSnapshotter{BaseDir: v.baseDir}
		remote := &snapshot.RPCSnapshotter{}
		others := make([]*replica.Replica, 0, len(existing))
		for _, r := range existing {
			if r != newReplica {
				others = append(others, r)
			}
		}
		result := snapshot.Run(others, snapName, local, remote)
		if !result.Success() {
			rebuildErr = NewVolumeError("online_add", v.name, CodePartial, "snapshot before rebuild failed on at least one replica")
			return
		}

		if err := rebuildLocalReplica(v.baseDir, donor, newReplica, snapName); err != nil {
			rebuildErr = WrapError("online_add_rebuild", err)
			return
		}
		newReplica.SetState(replica.StateRW)
	})

	if rebuildErr != nil {
		newReplica.SetState(replica.StateErr)
		v.observer.ObserveRebuild(false, false, true)
		return rebuildErr
	}
	v.observer.ObserveRebuild(false, true, false)
	v.observer.ObserveReplicaAdded()
	return nil
}

func firstOtherRW(members []*replica.Replica, exceptName string) *replica.Replica {
	for _, r := range members {
		if r.Name != exceptName && r.State() == replica.StateRW {
			return r
		}
	}
	return nil
}

// rebuildLocalReplica performs a same-process full copy of the donor's
// snapshot file (<baseDir>/<lvs>_<name>@<snapshot>.img, as FileSnapshotter
// writes it) into target's device: the full-device equivalent of
// internal/rebuild's wire protocol, without a network hop. onlineAdd uses it
// for every donor; a remote donor has no such local file, so the copy fails
// and the add reports an error. internal/rebuild.RequestRebuild is reached
// only through cmd/longhornd's rebuild_remote handler.
func rebuildLocalReplica(baseDir string, donor *replica.Replica, target *replica.Replica, snapshotName string) error {
	bareName := strings.TrimPrefix(donor.Name, donor.LVS+"/")
	donorDevicePath := fmt.Sprintf("%s/%s_%s@%s.img", baseDir, donor.LVS, bareName, snapshotName)
	return rebuild.CopyFile(donorDevicePath, target.Device())
}

// withPause runs fn with every channel paused, then unpauses unconditionally
// (spec.md 4.G step 5 / 4.F online-add step 1e: pause must always be
// followed by unpause even when fn records a failure). Callers serialize
// through opMu so that, since every pause-using operation on this volume is
// itself serialized, PauseCallback FIFO ordering (spec.md §3/4.D) reduces to
// call-site ordering rather than requiring a separate internal queue.
func (v *Volume) withPause(fn func()) {
	channels := v.snapshotChannels()
	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		ch.Pause(func() { wg.Done() })
	}
	wg.Wait()

	fn()

	for _, ch := range channels {
		ch.Unpause()
	}
}

// RemoveReplica implements spec.md 4.F's "Remove replica": detach from
// membership, decrement N, and post a remove-sub-channel message to every
// live channel.
func (v *Volume) RemoveReplica(name string) error {
	v.mu.Lock()
	idx := -1
	for i, r := range v.membership {
		if r.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		v.mu.Unlock()
		return NewVolumeError("remove_replica", v.name, CodeNotFound, fmt.Sprintf("replica %q not found", name))
	}
	r := v.membership[idx]
	v.membership = append(v.membership[:idx], v.membership[idx+1:]...)
	v.n--
	channels := make([]*channel.Channel, len(v.channels))
	copy(channels, v.channels)
	v.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		ch.RemoveReplica(name, func() { wg.Done() })
	}
	wg.Wait()

	if err := r.Close(); err != nil {
		return WrapError("remove_replica", err)
	}
	v.observer.ObserveReplicaRemoved()
	return nil
}

// Snapshot implements spec.md 4.G: pause, snapshot every replica (local or
// remote), unpause, aggregate the per-replica outcome.
func (v *Volume) Snapshot(snapshotName string) (*PartialResult, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.observer.ObservePause(true, false)
	var result snapshot.Result
	v.withPause(func() {
		members := v.Membership()
		local := &snapshot.FileSnapshotter{BaseDir: v.baseDir}
		remote := &snapshot.RPCSnapshotter{}
		result = snapshot.Run(members, snapshotName, local, remote)
	})
	v.observer.ObservePause(false, true)

	out := &PartialResult{Outcomes: make([]ReplicaOutcome, len(result.Outcomes))}
	for i, o := range result.Outcomes {
		out.Outcomes[i] = ReplicaOutcome{Replica: o.ReplicaName, Err: o.Err}
	}
	if !out.Success() {
		return out, out
	}
	return out, nil
}

// Close transitions the volume to Offline and closes every replica's
// descriptor on its home goroutine, and every channel's goroutine.
func (v *Volume) Close() error {
	v.mu.Lock()
	v.state = Offline
	members := make([]*replica.Replica, len(v.membership))
	copy(members, v.membership)
	channels := make([]*channel.Channel, len(v.channels))
	copy(channels, v.channels)
	v.mu.Unlock()

	var firstErr error
	for _, r := range members {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, ch := range channels {
		ch.Close()
	}
	return firstErr
}

// The following methods implement internal/interfaces.Backend, letting
// *Volume be exported as a real ublk device by the frontend adapter
// (frontend.go). They submit through the volume's lazily-created default
// channel; the per-hardware-queue frontend instead calls NewChannel once
// per queue and bypasses these.

func (v *Volume) ReadAt(p []byte, off int64) (int, error) {
	err := v.submit(channel.Read, off, int64(len(p)), p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (v *Volume) WriteAt(p []byte, off int64) (int, error) {
	err := v.submit(channel.Write, off, int64(len(p)), p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (v *Volume) Flush() error {
	return v.submit(channel.Flush, 0, 0, nil)
}

func (v *Volume) Discard(offset, length int64) error {
	return v.submit(channel.Unmap, offset, length, nil)
}

func (v *Volume) submit(t channel.Type, offset, length int64, buf []byte) error {
	ch := v.defaultChannel()
	done := make(chan error, 1)
	ch.Submit(t, offset, length, buf, func(err error) { done <- err })
	return <-done
}
