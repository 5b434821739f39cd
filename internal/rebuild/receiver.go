package rebuild

import (
	"fmt"
	"io"
	"net"
)

// Target is the receiver-side device a rebuild writes into: a newly added
// replica's WriteOnly device.
type Target interface {
	WriteAt(p []byte, off int64) (int, error)
}

// Result summarizes one completed rebuild stream.
type Result struct {
	Name              string
	NumClusters       uint64
	AllocatedClusters uint64
	ClusterIndices    []uint32
}

// Receive implements the receiver side of spec.md 4.H: it reads the name,
// header and allocation table from conn, then for each allocated cluster
// index reads cluster_size bytes and writes them into target at
// index*cluster_size, serialized (the next read waits for the previous
// write to complete, exactly as the source requires).
func Receive(conn net.Conn, target Target) (Result, error) {
	name, err := readName(conn)
	if err != nil {
		return Result{}, err
	}
	h, err := readHeader(conn)
	if err != nil {
		return Result{}, err
	}
	table, err := readAllocationTable(conn, h.AllocatedClusters)
	if err != nil {
		return Result{}, err
	}

	buf := make([]byte, h.ClusterSize)
	for _, idx := range table {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return Result{}, fmt.Errorf("rebuild: read cluster %d: %w", idx, err)
		}
		offset := int64(idx) * int64(h.ClusterSize)
		if _, err := target.WriteAt(buf, offset); err != nil {
			return Result{}, fmt.Errorf("rebuild: write cluster %d: %w", idx, err)
		}
	}

	return Result{
		Name:              name,
		NumClusters:       h.NumClusters,
		AllocatedClusters: h.AllocatedClusters,
		ClusterIndices:    table,
	}, nil
}

// RequestRebuild dials a donor at addr, requests blobID, and streams the
// result into target. rebuild_remote's name prefix is not a parameter here:
// the caller names and creates target before calling.
func RequestRebuild(addr string, blobID uint64, target Target) (Result, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("rebuild: dial donor %s: %w", addr, err)
	}
	defer conn.Close()

	if err := writeBlobID(conn, blobID); err != nil {
		return Result{}, err
	}
	return Receive(conn, target)
}
