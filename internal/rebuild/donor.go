package rebuild

import (
	"fmt"
	"io"
	"net"
)

// AllocationSource is the donor-side abstraction the rebuild engine walks:
// the cluster-granular introspection spec.md attributes to "a
// logical-volume-store allowing cluster-granular introspection". Modeled as
// an interface so the real logical-volume store backing it stays an
// external collaborator, per spec.md's non-goal on the LVS itself
// (original_source: bdev_longhorn_rebuild.c's longhorn_blob_info).
type AllocationSource interface {
	BlobID() uint64
	Name() string
	NumClusters() uint64
	ClusterSize() uint32
	IOUnitSize() uint32
	// AllocatedClusters returns the donor's allocation table: the indices
	// of clusters that are non-empty, in the order they should stream.
	AllocatedClusters() []uint32
	// ReadCluster returns the contents of the cluster at index.
	ReadCluster(index uint32) ([]byte, error)
}

// ServeDonor accepts rebuild connections on ln and streams src to each.
// lookup resolves the blob id the client opens with a stream id to serve;
// a donor typically exports more than one blob (one per snapshot in a
// chain), so lookup is consulted per-connection rather than baked in.
func ServeDonor(ln net.Listener, lookup func(blobID uint64) (AllocationSource, error)) *DonorServer {
	s := &DonorServer{ln: ln, lookup: lookup, done: make(chan struct{})}
	go s.acceptLoop()
	return s
}

// DonorServer is the donor side of a rebuild stream (spec.md 4.H,
// "Donor side (serving a rebuild request over TCP)").
type DonorServer struct {
	ln     net.Listener
	lookup func(blobID uint64) (AllocationSource, error)
	done   chan struct{}
}

func (s *DonorServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *DonorServer) serve(conn net.Conn) {
	defer conn.Close()
	s.stream(conn)
}

func (s *DonorServer) stream(conn net.Conn) error {
	blobID, err := readBlobID(conn)
	if err != nil {
		return err
	}
	src, err := s.lookup(blobID)
	if err != nil {
		return fmt.Errorf("rebuild: donor lookup blob %d: %w", blobID, err)
	}

	if err := writeName(conn, src.Name()); err != nil {
		return err
	}
	table := src.AllocatedClusters()
	if err := writeHeader(conn, header{
		NumClusters:       src.NumClusters(),
		AllocatedClusters: uint64(len(table)),
		ClusterSize:       src.ClusterSize(),
		IOUnitSize:        src.IOUnitSize(),
	}); err != nil {
		return err
	}
	if err := writeAllocationTable(conn, table); err != nil {
		return err
	}
	for _, idx := range table {
		data, err := src.ReadCluster(idx)
		if err != nil {
			return fmt.Errorf("rebuild: donor read cluster %d: %w", idx, err)
		}
		if uint32(len(data)) != src.ClusterSize() {
			return fmt.Errorf("rebuild: donor cluster %d size %d != %d", idx, len(data), src.ClusterSize())
		}
		if _, err := conn.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting new rebuild connections.
func (s *DonorServer) Close() error {
	close(s.done)
	return s.ln.Close()
}

var _ io.Closer = (*DonorServer)(nil)
