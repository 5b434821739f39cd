// Package snapshot implements the per-replica fan-out half of the snapshot
// orchestrator (spec.md 4.G): once a volume's channels have already been
// paused (the root package owns that half — cross-channel aggregation
// lives with Volume, not here, mirroring internal/channel's own
// per-channel-vs-control-thread split), Run invokes the local or remote
// snapshot primitive on every replica concurrently and collects the
// per-replica outcome.
package snapshot

import (
	"strings"
	"sync"

	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
)

// Outcome is one replica's result from a snapshot attempt.
type Outcome struct {
	ReplicaName string
	Err         error
}

// Result is the aggregate of every replica's outcome. The root package
// translates this into mirror.PartialResult at the Volume.Snapshot
// boundary (spec.md 4.G step 6: "Overall result is success iff all
// per-replica snapshots succeeded; partial failure is reported").
type Result struct {
	Outcomes []Outcome
}

// Success reports whether every replica's snapshot attempt succeeded.
func (r Result) Success() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}

// LocalSnapshotter invokes the local logical-volume-store's snapshot
// primitive (original_source: bdev_longhorn_snapshot.c). External
// collaborator per spec.md's non-goal on the LVS itself.
type LocalSnapshotter interface {
	Snapshot(lvs, replicaName, snapshotName string) error
}

// RemoteSnapshotter issues a JSON-RPC snapshot request to a remote
// replica's control endpoint (original_source: bdev_longhorn_remote_sync.c).
type RemoteSnapshotter interface {
	SnapshotRemote(address string, controlPort uint16, lvs, replicaName, snapshotName string) error
}

// Run fires snapshotName against every replica in replicas concurrently,
// local replicas through local and remote replicas through remote, and
// blocks until all have reported in (spec.md 4.G step 5: "When all N
// snapshot responses have returned (success or failure), call unpause").
func Run(replicas []*replica.Replica, snapshotName string, local LocalSnapshotter, remote RemoteSnapshotter) Result {
	outcomes := make([]Outcome, len(replicas))
	var wg sync.WaitGroup
	for i, r := range replicas {
		wg.Add(1)
		go func(i int, r *replica.Replica) {
			defer wg.Done()
			var err error
			// r.Name is "<prefix><lvs>/<replica>" (prefix empty except for some
			// remote replicas); the snapshotters take the bare replica name.
			name := r.Name
			if k := strings.Index(r.Name, r.LVS+"/"); k >= 0 {
				name = r.Name[k+len(r.LVS)+1:]
			}
			if r.Locality == replica.Local {
				err = local.Snapshot(r.LVS, name, snapshotName)
			} else {
				err = remote.SnapshotRemote(r.Address, r.ControlPort, r.LVS, name, snapshotName)
			}
			outcomes[i] = Outcome{ReplicaName: r.Name, Err: err}
		}(i, r)
	}
	wg.Wait()
	return Result{Outcomes: outcomes}
}
