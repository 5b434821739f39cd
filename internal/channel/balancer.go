package channel

// selectRead implements the read balancer (spec.md 4.C). It walks the
// member sub-channels starting just past the last one chosen, picking the
// first RW-eligible sub-channel whose bandwidth counter has not yet caught
// up to the running maximum; if a full lap finds none below the max, it
// makes a second lap, continuing from the cursor, and takes the first
// RW-eligible sub-channel outright. This is the resolved Open Question reading of
// "always find the next eligible replica" rather than a strict round robin:
// a replica that has been silent (e.g. just re-added) is preferred until its
// counter catches up, then the ring degrades to plain rotation.
//
// Must only be called from the Channel's own goroutine: cursor and the
// bandwidth counters are unsynchronized state private to one Channel.
func (c *Channel) selectRead(length int64) (*SubChannel, error) {
	n := len(c.subs)
	if n == 0 {
		return nil, errNoMembers
	}

	for pass := 0; pass < 2; pass++ {
		for i := 0; i < n; i++ {
			c.cursor = (c.cursor + 1) % n
			sc := c.subs[c.cursor]
			if !sc.eligibleForRead() {
				continue
			}
			if pass == 1 || sc.bandwidth < c.maxBandwidth {
				c.accountRead(sc, length)
				return sc, nil
			}
		}
	}
	return nil, errNoReadableReplica
}

// accountRead folds length into sc's bandwidth counter and keeps
// c.maxBandwidth in step. If the running maximum is about to overflow, every
// counter and the maximum are first reset to zero together, so all members
// start again from equal standing.
func (c *Channel) accountRead(sc *SubChannel, length int64) {
	const overflowGuard = 1 << 62
	if c.maxBandwidth > overflowGuard {
		for _, other := range c.subs {
			other.bandwidth = 0
		}
		c.maxBandwidth = 0
	}
	sc.bandwidth += uint64(length)
	if sc.bandwidth > c.maxBandwidth {
		c.maxBandwidth = sc.bandwidth
	}
}

// writeTargets returns every sub-channel eligible to receive a write, in
// membership order. Flush, Unmap and Reset fan out identically.
func (c *Channel) writeTargets() []*SubChannel {
	targets := make([]*SubChannel, 0, len(c.subs))
	for _, sc := range c.subs {
		if sc.eligibleForWrite() {
			targets = append(targets, sc)
		}
	}
	return targets
}

func (c *Channel) allTargets() []*SubChannel {
	return c.subs
}

var (
	errNoMembers         = replicaErr("channel has no member replicas")
	errNoReadableReplica = replicaErr("no RW-eligible replica for read")
)

type replicaErr string

func (e replicaErr) Error() string { return string(e) }
