package channel

import "github.com/longhorn-io/go-longhorn-bdev/internal/replica"

// SubChannel is a Channel's private handle onto one member replica: the
// shared *replica.Replica plus the per-channel read-balancer bandwidth
// counter spec.md 4.C keeps "one per (channel, replica) pair, not shared
// across channels, so balancing decisions never need cross-channel
// coordination."
type SubChannel struct {
	Replica   *replica.Replica
	bandwidth uint64
}

func newSubChannel(r *replica.Replica) *SubChannel {
	return &SubChannel{Replica: r}
}

func (s *SubChannel) eligibleForRead() bool {
	return s.Replica.State() == replica.StateRW
}

func (s *SubChannel) eligibleForWrite() bool {
	st := s.Replica.State()
	return st == replica.StateRW || st == replica.StateWriteOnly
}
