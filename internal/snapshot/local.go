package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSnapshotter implements LocalSnapshotter over plain backing files
// (the same layout internal/replica.AttachLocalFile uses): a snapshot is a
// copy-on-write-free full copy of the replica's backing file at
// <baseDir>/<lvs>_<replica>@<snapshotName>.img. A real logical-volume-store
// would do this with a cheap blob reference instead of a full copy; this
// stands in for it the same way internal/replica/remote.go stands in for
// NVMe-oF, so local snapshots are concretely testable without one.
type FileSnapshotter struct {
	BaseDir string
}

func (s *FileSnapshotter) Snapshot(lvs, replicaName, snapshotName string) error {
	src := filepath.Join(s.BaseDir, lvs+"_"+replicaName+".img")
	dst := filepath.Join(s.BaseDir, fmt.Sprintf("%s_%s@%s.img", lvs, replicaName, snapshotName))

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("snapshot: open backing file %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("snapshot: create snapshot file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("snapshot: copy %s -> %s: %w", src, dst, err)
	}
	return out.Sync()
}

var _ LocalSnapshotter = (*FileSnapshotter)(nil)
