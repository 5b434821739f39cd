package replica

import "os"

// FileDevice is a Device backed by a regular file, used for real local
// replicas anchored in a logical-volume-store's backing directory. Unmap
// zero-fills the range (no real TRIM support for plain files); Reset is a
// no-op since a file has no outstanding queue to drain.
type FileDevice struct {
	f         *os.File
	size      int64
	blockSize int
}

// OpenFileDevice opens (creating if necessary) a file to back a local
// replica. A positive size truncates (or extends) the file to that size,
// for a freshly created replica; size<=0 opens an already-sized file as-is
// (e.g. volume_create attaching a replica an earlier replica_create already
// sized), failing if the file does not yet exist.
func OpenFileDevice(path string, size int64, blockSize int) (*FileDevice, error) {
	flags := os.O_RDWR | os.O_CREATE
	if size <= 0 {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		size = info.Size()
	}
	return &FileDevice{f: f, size: size, blockSize: blockSize}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil && n == 0 {
		return 0, err
	}
	return n, nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *FileDevice) Flush() error {
	return d.f.Sync()
}

func (d *FileDevice) Unmap(off, length int64) error {
	zero := make([]byte, length)
	_, err := d.f.WriteAt(zero, off)
	return err
}

func (d *FileDevice) Reset() error { return nil }

func (d *FileDevice) Size() int64 { return d.size }

func (d *FileDevice) BlockSize() int { return d.blockSize }

func (d *FileDevice) Close() error {
	return d.f.Close()
}

var _ Device = (*FileDevice)(nil)
