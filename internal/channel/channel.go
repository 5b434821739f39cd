package channel

import (
	"time"

	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
)

// MetricsSink is the subset of mirror.Observer the dispatcher needs.
// Declared locally (rather than imported) so internal/channel never depends
// on the root package: the root package's *mirror.MetricsObserver and
// mirror.NoOpObserver satisfy this by structural typing alone.
type MetricsSink interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveFlush(latencyNs uint64, success bool)
	ObserveUnmap(latencyNs uint64, success bool)
	ObserveReset(latencyNs uint64, success bool)
}

type noopSink struct{}

func (noopSink) ObserveRead(uint64, uint64, bool)  {}
func (noopSink) ObserveWrite(uint64, uint64, bool) {}
func (noopSink) ObserveFlush(uint64, bool)         {}
func (noopSink) ObserveUnmap(uint64, bool)         {}
func (noopSink) ObserveReset(uint64, bool)         {}

// Channel is one goroutine's I/O-submission context against a volume's
// current replica membership: the union of spec.md's io_channel, its
// read-balancer state and its pause state. One Channel backs one ublk
// hardware queue (internal/queue.Runner) in the frontend adapter, or one
// synthetic channel in a standalone rpcsrv-only deployment.
type Channel struct {
	Name string

	mailbox chan func()
	closed  chan struct{}

	subs        []*SubChannel
	cursor      int
	maxBandwidth uint64

	paused          bool
	pauseComplete   func()
	waitQueue       []func()
	inFlight        int64

	observer MetricsSink
}

// New creates a Channel with the given initial member replicas. name
// identifies the channel for logging (e.g. "<volume>/ch0").
func New(name string, members []*replica.Replica, observer MetricsSink) *Channel {
	if observer == nil {
		observer = noopSink{}
	}
	subs := make([]*SubChannel, 0, len(members))
	for _, r := range members {
		subs = append(subs, newSubChannel(r))
	}
	c := &Channel{
		Name:     name,
		mailbox:  make(chan func(), 256),
		closed:   make(chan struct{}),
		subs:     subs,
		observer: observer,
	}
	go c.run()
	return c
}

func (c *Channel) run() {
	for {
		select {
		case job := <-c.mailbox:
			job()
		case <-c.closed:
			return
		}
	}
}

// post schedules a function to run on the channel's own goroutine. Every
// mutation of c's unsynchronized state (subs, cursor, paused, waitQueue,
// inFlight) must happen through post, mirroring the teacher's single
// io-thread-owns-its-state discipline in internal/queue.Runner.
func (c *Channel) post(f func()) {
	c.mailbox <- f
}

// Close stops the channel's goroutine. Any IOs still in flight are left to
// complete independently; Close does not wait for them.
func (c *Channel) Close() {
	close(c.closed)
}

// AddReplica admits a new member sub-channel, used both at volume creation
// and at the start of an online replica add, before the rebuild (spec.md 4.F).
// The new member's read/write eligibility follows r's own State, so a caller
// can add a freshly-rebuilt replica as WriteOnly and switch it to RW later.
func (c *Channel) AddReplica(r *replica.Replica, done func()) {
	c.post(func() {
		c.subs = append(c.subs, newSubChannel(r))
		if done != nil {
			done()
		}
	})
}

// RemoveReplica drops a member by name. It does not close the replica's
// device; the caller (Volume) owns that lifecycle decision.
func (c *Channel) RemoveReplica(name string, done func()) {
	c.post(func() {
		kept := c.subs[:0]
		for _, sc := range c.subs {
			if sc.Replica.Name != name {
				kept = append(kept, sc)
			}
		}
		c.subs = kept
		if c.cursor >= len(c.subs) {
			c.cursor = 0
		}
		if done != nil {
			done()
		}
	})
}

// Members returns a snapshot of the channel's current replica membership,
// used by the snapshot and rebuild orchestrators to fan work out
// per-replica without going through the hot I/O path.
func (c *Channel) Members() []*replica.Replica {
	result := make(chan []*replica.Replica, 1)
	c.post(func() {
		out := make([]*replica.Replica, len(c.subs))
		for i, sc := range c.subs {
			out[i] = sc.Replica
		}
		result <- out
	})
	return <-result
}

func clockNow() time.Time { return time.Now() }
