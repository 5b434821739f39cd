package replica

import (
	"fmt"
	"path/filepath"
)

// AttachLocalFile opens (creating it when size is positive) a file-backed local replica
// anchored in baseDir, synthesizing the donor-device identifier by
// concatenating the logical-volume-store name and the replica name, per
// spec.md 4.F ("Add local replica... synthesize a local device identifier by
// concatenating the logical-volume-store name and the replica name").
func AttachLocalFile(baseDir, lvs, name string, size int64, blockSize int) (*Replica, error) {
	devName := lvs + "/" + name
	path := filepath.Join(baseDir, lvs+"_"+name+".img")
	dev, err := OpenFileDevice(path, size, blockSize)
	if err != nil {
		return nil, fmt.Errorf("replica: open local file device %s: %w", path, err)
	}
	r := New(devName, Local, dev, NewHome())
	r.LVS = lvs
	return r, nil
}

// AttachLocalMemory attaches an in-memory local replica, used by tests and by
// operators running an all-RAM lvs for ephemeral volumes.
func AttachLocalMemory(lvs, name string, size int64, blockSize int) *Replica {
	devName := lvs + "/" + name
	dev := NewMemoryDevice(size, blockSize)
	r := New(devName, Local, dev, NewHome())
	r.LVS = lvs
	return r
}

// AttachRemote dials a remote replica server and wraps the connection as a
// Replica. addrPrefix lets callers avoid device-name collisions when a
// single remote host exports more than one lvs (spec.md 4.F: "creating proxy
// devices with a chosen name prefix to avoid collisions").
func AttachRemote(address string, nvmfPort, controlPort uint16, lvs, name, namePrefix string) (*Replica, error) {
	dev, err := DialRemoteDevice(fmt.Sprintf("%s:%d", address, nvmfPort))
	if err != nil {
		return nil, fmt.Errorf("replica: dial remote %s:%d: %w", address, nvmfPort, err)
	}
	devName := namePrefix + lvs + "/" + name
	r := New(devName, Remote, dev, NewHome())
	r.LVS = lvs
	r.Address = address
	r.NVMfPort = nvmfPort
	r.ControlPort = controlPort
	r.RemoteNQN = fmt.Sprintf("nqn.2025-01.io.longhorn.replica:%s/%s", lvs, name)
	return r, nil
}
