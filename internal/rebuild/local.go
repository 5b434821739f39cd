package rebuild

import (
	"fmt"
	"io"
	"os"
)

// localClusterSize is the chunk size CopyFile streams in; it has no wire
// significance (there's no network hop here), it just keeps memory use
// bounded for large backing files.
const localClusterSize = 1 << 20

// Target is satisfied by any WriteAt-capable device; CopyFile needs nothing
// beyond WriteAt, so callers can pass a replica.Device directly.

// CopyFile rebuilds target from a local snapshot backing file at srcPath,
// used when both donor and new replica are same-process local files and a
// network round trip through Receive/ServeDonor would be pure overhead.
func CopyFile(srcPath string, target Target) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("rebuild: open donor snapshot %s: %w", srcPath, err)
	}
	defer f.Close()

	buf := make([]byte, localClusterSize)
	var offset int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := target.WriteAt(buf[:n], offset); err != nil {
				return fmt.Errorf("rebuild: write offset %d: %w", offset, err)
			}
			offset += int64(n)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("rebuild: read donor snapshot %s: %w", srcPath, readErr)
		}
	}
}
