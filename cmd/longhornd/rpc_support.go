package main

import (
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	mirror "github.com/longhorn-io/go-longhorn-bdev"
	"github.com/longhorn-io/go-longhorn-bdev/internal/rebuild"
	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
	"github.com/longhorn-io/go-longhorn-bdev/internal/rpcsrv"
	"github.com/longhorn-io/go-longhorn-bdev/internal/snapshot"
)

// blobIDFor derives a stable blob id from a backing file's name, standing
// in for the logical-volume-store's own blob id allocator (spec.md scopes
// the LVS out as an external collaborator). Both the donor lookup and the
// puller in rebuildRemote compute it the same way, so neither side needs to
// exchange it out of band.
func blobIDFor(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

func backingFilePath(baseDir, lvs, name string) string {
	return filepath.Join(baseDir, lvs+"_"+name+".img")
}

// fileAllocationSource presents a plain backing file as a rebuild donor
// blob: the whole file, split into fixed clusters, all "allocated" (a plain
// file carries no allocation table of its own).
type fileAllocationSource struct {
	name        string
	path        string
	clusterSize uint32
}

const donorClusterSize = 1 << 20

func (s *fileAllocationSource) BlobID() uint64 { return blobIDFor(s.name) }
func (s *fileAllocationSource) Name() string   { return s.name }

func (s *fileAllocationSource) NumClusters() uint64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	n := uint64(info.Size()) / uint64(s.clusterSize)
	if uint64(info.Size())%uint64(s.clusterSize) != 0 {
		n++
	}
	return n
}

func (s *fileAllocationSource) ClusterSize() uint32 { return s.clusterSize }
func (s *fileAllocationSource) IOUnitSize() uint32  { return uint32(mirror.DefaultBlockSize) }

func (s *fileAllocationSource) AllocatedClusters() []uint32 {
	n := s.NumClusters()
	table := make([]uint32, n)
	for i := range table {
		table[i] = uint32(i)
	}
	return table
}

func (s *fileAllocationSource) ReadCluster(index uint32) ([]byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, s.clusterSize)
	n, err := f.ReadAt(buf, int64(index)*int64(s.clusterSize))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

var _ rebuild.AllocationSource = (*fileAllocationSource)(nil)

// donorLookup resolves a requested blob id by scanning baseDir's backing
// files and matching blobIDFor(name) (spec.md 4.E's registry accepts linear
// scans over the small volume count this module targets).
func donorLookup(baseDir string) func(blobID uint64) (rebuild.AllocationSource, error) {
	return func(blobID uint64) (rebuild.AllocationSource, error) {
		entries, err := os.ReadDir(baseDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".img") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".img")
			if blobIDFor(name) == blobID {
				return &fileAllocationSource{
					name:        name,
					path:        filepath.Join(baseDir, e.Name()),
					clusterSize: donorClusterSize,
				}, nil
			}
		}
		return nil, fmt.Errorf("rpc_support: no backing file matches blob %d", blobID)
	}
}

// serveDonor starts the rebuild donor listener other longhornd instances
// pull from via rebuild_remote / RequestRebuild.
func serveDonor(baseDir, listenAddr string) (*rebuild.DonorServer, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("rpc_support: listen donor %s: %w", listenAddr, err)
	}
	return rebuild.ServeDonor(ln, donorLookup(baseDir)), nil
}

func snapshotLocalFile(baseDir, lvs, name, snapshotName string) error {
	s := &snapshot.FileSnapshotter{BaseDir: baseDir}
	return s.Snapshot(lvs, name, snapshotName)
}

// requestRebuild pulls prefix+name from a remote donor at address:port into
// a local backing file (created earlier by lvol_import or replica_create)
// and returns the stream summary for the RPC response.
func requestRebuild(baseDir string, p rpcsrv.RebuildRemoteParams) (rebuild.Result, error) {
	path := backingFilePath(baseDir, p.LVS, p.Prefix+p.Name)
	dev, err := replica.OpenFileDevice(path, 0, mirror.DefaultBlockSize)
	if err != nil {
		return rebuild.Result{}, fmt.Errorf("rpc_support: open rebuild target %s: %w", path, err)
	}
	defer dev.Close()

	addr := fmt.Sprintf("%s:%d", p.Address, p.Port)
	return rebuild.RequestRebuild(addr, blobIDFor(p.Name), dev)
}

// importLvol copies an externally-supplied sparse file in as a replica's
// backing file, for bulk-loading a blob that already exists on disk rather
// than building it up through ordinary writes.
func importLvol(baseDir, lvs, name, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("rpc_support: open import source %s: %w", srcPath, err)
	}
	defer src.Close()

	dstPath := backingFilePath(baseDir, lvs, name)
	dst, err := os.OpenFile(dstPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("rpc_support: create import target %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("rpc_support: copy %s -> %s: %w", srcPath, dstPath, err)
	}
	return dst.Sync()
}

// linkLvols sets the snapshot-parent attribute (spec.md 4.H: "linkage is
// fatal on error") by writing a sidecar file next to the child's backing
// file naming its parent, the same role a real logical-volume-store would
// track as blob metadata.
func linkLvols(baseDir, child, parent string) error {
	path := filepath.Join(baseDir, child+".parent")
	if err := os.WriteFile(path, []byte(parent), 0o600); err != nil {
		return fmt.Errorf("rpc_support: link %s -> %s: %w", child, parent, err)
	}
	return nil
}

// publishReplica exports r over the remote replica wire protocol so other
// longhornd instances can attach it with AddRemoteReplica, the
// "optionally publish NVMf" half of replica_create (spec.md §6). The control
// port is left to the caller's RPC server; this only opens the data port.
func publishReplica(r *replica.Replica, address string, port uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return fmt.Errorf("rpc_support: listen publish %s:%d: %w", address, port, err)
	}
	replica.ServeRemoteDevice(ln, r.Device())
	return nil
}

// compareBdevs implements volume_compare (spec.md §6): a block-wise
// diagnostic diff between two local backing files named "<lvs>/<replica>",
// returning the offset of the first mismatch.
func compareBdevs(bdev1, bdev2 string) (rpcsrv.VolumeCompareResult, error) {
	path1 := bdevPath(bdev1)
	path2 := bdevPath(bdev2)

	f1, err := os.Open(path1)
	if err != nil {
		return rpcsrv.VolumeCompareResult{}, fmt.Errorf("rpc_support: open %s: %w", path1, err)
	}
	defer f1.Close()
	f2, err := os.Open(path2)
	if err != nil {
		return rpcsrv.VolumeCompareResult{}, fmt.Errorf("rpc_support: open %s: %w", path2, err)
	}
	defer f2.Close()

	const chunkSize = 1 << 20
	buf1 := make([]byte, chunkSize)
	buf2 := make([]byte, chunkSize)
	var offset int64

	for {
		n1, err1 := io.ReadFull(f1, buf1)
		n2, err2 := io.ReadFull(f2, buf2)
		n := n1
		if n2 < n {
			n = n2
		}
		for i := 0; i < n; i++ {
			if buf1[i] != buf2[i] {
				return rpcsrv.VolumeCompareResult{Identical: false, FirstDiffOff: offset + int64(i)}, nil
			}
		}
		offset += int64(n)

		done1 := err1 == io.EOF || err1 == io.ErrUnexpectedEOF
		done2 := err2 == io.EOF || err2 == io.ErrUnexpectedEOF
		if done1 != done2 {
			return rpcsrv.VolumeCompareResult{Identical: false, FirstDiffOff: offset}, nil
		}
		if done1 && done2 {
			return rpcsrv.VolumeCompareResult{Identical: true}, nil
		}
		if err1 != nil && !done1 {
			return rpcsrv.VolumeCompareResult{}, fmt.Errorf("rpc_support: read %s: %w", path1, err1)
		}
		if err2 != nil && !done2 {
			return rpcsrv.VolumeCompareResult{}, fmt.Errorf("rpc_support: read %s: %w", path2, err2)
		}
	}
}

// bdevPath resolves a "<lvs>/<replica>" bdev name to its backing file,
// relative to the server process's current base directory convention.
func bdevPath(bdev string) string {
	lvs, name, found := strings.Cut(bdev, "/")
	if !found {
		return bdev
	}
	return filepath.Join(defaultBaseDirForCompare, lvs+"_"+name+".img")
}

// defaultBaseDirForCompare is set once at daemon startup so compareBdevs,
// which only receives bare bdev names over the wire, can resolve them to
// files without threading baseDir through every call.
var defaultBaseDirForCompare string
