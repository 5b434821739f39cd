// Package rebuild implements the differential rebuild engine (spec.md 4.H):
// a donor server that streams only the clusters a donor blob has allocated,
// and a receiver that replays that stream into a newly added replica's
// device.
//
// Grounded on original_source's bdev_longhorn_rebuild.c (blob-copy stream,
// longhorn_blob_info's num_clusters/allocated_clusters/table shape) and on
// the teacher's internal/uapi/marshal.go manual little-endian struct
// marshal style, used here instead of encoding/gob or protobuf to match
// that same explicit-binary-layout preference.
package rebuild

import (
	"encoding/binary"
	"fmt"
	"io"
)

// nameFieldSize is the canonical, NUL-padded size of the rebuild stream's
// name field. spec.md's Open Questions section resolves an inconsistently
// zero-padded original field to this fixed width.
const nameFieldSize = 256

// header is the fixed-size block that follows the name field.
type header struct {
	NumClusters       uint64
	AllocatedClusters uint64
	ClusterSize       uint32
	IOUnitSize        uint32
}

const headerSize = 8 + 8 + 4 + 4

func writeName(w io.Writer, name string) error {
	if len(name) > nameFieldSize {
		return fmt.Errorf("rebuild: name %q exceeds %d bytes", name, nameFieldSize)
	}
	var buf [nameFieldSize]byte
	copy(buf[:], name)
	_, err := w.Write(buf[:])
	return err
}

func readName(r io.Reader) (string, error) {
	var buf [nameFieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", fmt.Errorf("rebuild: read name: %w", err)
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

func writeHeader(w io.Writer, h header) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.NumClusters)
	binary.LittleEndian.PutUint64(buf[8:16], h.AllocatedClusters)
	binary.LittleEndian.PutUint32(buf[16:20], h.ClusterSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.IOUnitSize)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return header{}, fmt.Errorf("rebuild: read header: %w", err)
	}
	return header{
		NumClusters:       binary.LittleEndian.Uint64(buf[0:8]),
		AllocatedClusters: binary.LittleEndian.Uint64(buf[8:16]),
		ClusterSize:       binary.LittleEndian.Uint32(buf[16:20]),
		IOUnitSize:        binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

func writeAllocationTable(w io.Writer, table []uint32) error {
	buf := make([]byte, 4*len(table))
	for i, idx := range table {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], idx)
	}
	_, err := w.Write(buf)
	return err
}

func readAllocationTable(r io.Reader, count uint64) ([]uint32, error) {
	buf := make([]byte, 4*count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("rebuild: read allocation table: %w", err)
	}
	table := make([]uint32, count)
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return table, nil
}

func readBlobID(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("rebuild: read blob id: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeBlobID(w io.Writer, id uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	_, err := w.Write(buf[:])
	return err
}
