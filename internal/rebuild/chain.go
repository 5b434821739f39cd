package rebuild

import "fmt"

// LinkSource is a minimal donor-lookup surface for walking a remote
// snapshot chain newest-to-oldest during a full-chain rebuild.
type LinkSource interface {
	// Snapshots returns the chain's snapshot names, newest first.
	Snapshots() []string
	// BlobIDFor resolves the blob id backing a named snapshot.
	BlobIDFor(snapshot string) (uint64, error)
}

// Linker sets the snapshot-parent attribute on a rebuilt blob, fatal on
// error per spec.md 4.H ("Linkage is fatal on error").
type Linker interface {
	Link(child, parent string) error
}

// RebuildChain walks src's snapshot chain newest-to-oldest, rebuilding each
// into a target named prefix+snapshot_name, and links consecutive rebuilt
// blobs as parent/child (spec.md 4.H: "iterate remote snapshots
// newest-to-oldest; for each, rebuild its blob into a bdev named
// <prefix><snapshot_name>; link consecutive rebuilt blobs as parent/child").
func RebuildChain(addr string, src LinkSource, linker Linker, prefix string, newTarget func(name string) (Target, error)) ([]Result, error) {
	snapshots := src.Snapshots()
	results := make([]Result, 0, len(snapshots))

	var previousName string
	for i, snap := range snapshots {
		blobID, err := src.BlobIDFor(snap)
		if err != nil {
			return results, fmt.Errorf("rebuild: resolve blob for snapshot %q: %w", snap, err)
		}
		childName := prefix + snap
		target, err := newTarget(childName)
		if err != nil {
			return results, fmt.Errorf("rebuild: create target %q: %w", childName, err)
		}
		res, err := RequestRebuild(addr, blobID, target)
		if err != nil {
			return results, fmt.Errorf("rebuild: stream snapshot %q: %w", snap, err)
		}
		results = append(results, res)

		if i > 0 {
			// previousName is the next-newer blob already rebuilt; childName
			// (this iteration's, older) becomes its snapshot-parent.
			if err := linker.Link(previousName, childName); err != nil {
				return results, fmt.Errorf("rebuild: link %q -> %q: %w", previousName, childName, err)
			}
		}
		previousName = childName
	}
	return results, nil
}
