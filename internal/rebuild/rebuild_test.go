package rebuild

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name        string
	numClusters uint64
	clusterSize uint32
	ioUnitSize  uint32
	allocated   []uint32
	clusters    map[uint32][]byte
}

func (f *fakeSource) BlobID() uint64          { return 1 }
func (f *fakeSource) Name() string            { return f.name }
func (f *fakeSource) NumClusters() uint64     { return f.numClusters }
func (f *fakeSource) ClusterSize() uint32     { return f.clusterSize }
func (f *fakeSource) IOUnitSize() uint32      { return f.ioUnitSize }
func (f *fakeSource) AllocatedClusters() []uint32 { return f.allocated }
func (f *fakeSource) ReadCluster(idx uint32) ([]byte, error) {
	return f.clusters[idx], nil
}

type memTarget struct {
	data map[int64][]byte
}

func (m *memTarget) WriteAt(p []byte, off int64) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	m.data[off] = cp
	return len(p), nil
}

func newFakeSource() *fakeSource {
	mk := func(b byte) []byte {
		buf := make([]byte, 4096)
		for i := range buf {
			buf[i] = b
		}
		return buf
	}
	return &fakeSource{
		name:        "donor-blob",
		numClusters: 8,
		clusterSize: 4096,
		ioUnitSize:  512,
		allocated:   []uint32{0, 2, 5},
		clusters: map[uint32][]byte{
			0: mk(0x01),
			2: mk(0x02),
			5: mk(0x05),
		},
	}
}

func TestDonorReceiverRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	src := newFakeSource()
	srv := ServeDonor(ln, func(blobID uint64) (AllocationSource, error) {
		return src, nil
	})
	defer srv.Close()

	target := &memTarget{data: map[int64][]byte{}}
	res, err := RequestRebuild(ln.Addr().String(), 1, target)
	require.NoError(t, err)

	assert.Equal(t, "donor-blob", res.Name)
	assert.Equal(t, uint64(8), res.NumClusters)
	assert.Equal(t, []uint32{0, 2, 5}, res.ClusterIndices)

	for idx, want := range src.clusters {
		got, ok := target.data[int64(idx)*4096]
		require.True(t, ok, "cluster %d not written", idx)
		assert.True(t, bytes.Equal(want, got))
	}
	assert.Len(t, target.data, 3)
}

type fakeLinker struct {
	links [][2]string
}

func (l *fakeLinker) Link(child, parent string) error {
	l.links = append(l.links, [2]string{child, parent})
	return nil
}

type fakeLinkSource struct {
	snaps map[string]uint64
	order []string
}

func (s *fakeLinkSource) Snapshots() []string { return s.order }
func (s *fakeLinkSource) BlobIDFor(name string) (uint64, error) {
	return s.snaps[name], nil
}

func TestRebuildChainLinksConsecutiveSnapshots(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	byID := map[uint64]*fakeSource{
		1: {name: "snap_new", numClusters: 4, clusterSize: 4096, allocated: []uint32{0}, clusters: map[uint32][]byte{0: make([]byte, 4096)}},
		2: {name: "snap_old", numClusters: 4, clusterSize: 4096, allocated: []uint32{1}, clusters: map[uint32][]byte{1: make([]byte, 4096)}},
	}
	srv := ServeDonor(ln, func(blobID uint64) (AllocationSource, error) {
		return byID[blobID], nil
	})
	defer srv.Close()

	src := &fakeLinkSource{
		snaps: map[string]uint64{"snap_new": 1, "snap_old": 2},
		order: []string{"snap_new", "snap_old"},
	}
	linker := &fakeLinker{}
	targets := map[string]*memTarget{}

	results, err := RebuildChain(ln.Addr().String(), src, linker, "r2_", func(name string) (Target, error) {
		tg := &memTarget{data: map[int64][]byte{}}
		targets[name] = tg
		return tg, nil
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	require.Len(t, linker.links, 1)
	assert.Equal(t, [2]string{"r2_snap_new", "r2_snap_old"}, linker.links[0])
}
