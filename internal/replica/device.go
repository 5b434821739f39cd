// Package replica implements the base device proxy (spec component A): opening,
// claiming, and closing an underlying block device and issuing read/write/
// flush/unmap/reset primitives on it, plus the Replica membership object that
// wraps a Device with its home goroutine, state, and locality.
//
// Grounded on the teacher's backend.Memory (sharded-lock RAM backend) and
// testing.go's MockBackend, generalized from a single exported block device to
// one replica among N, and extended with Unmap/Reset and a remote (networked)
// device kind the teacher has no analogue for.
package replica

import "errors"

// ErrExhausted is the ENOMEM-equivalent soft failure: the device is
// momentarily out of capacity (e.g. a saturated backing store or socket
// buffer). Callers should requeue the request rather than fail it.
var ErrExhausted = errors.New("replica: device exhausted, retry")

// Device is the primitive surface a base device exposes to a sub-channel.
// All methods are expected to return promptly; ErrExhausted signals a
// transient condition the caller should retry, any other non-nil error is a
// hard failure.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Flush() error
	Unmap(off, length int64) error
	Reset() error
	Size() int64
	BlockSize() int
	Close() error
}
