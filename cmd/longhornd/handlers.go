package main

import (
	"encoding/json"
	"sync"

	mirror "github.com/longhorn-io/go-longhorn-bdev"
	"github.com/longhorn-io/go-longhorn-bdev/internal/registry"
	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
	"github.com/longhorn-io/go-longhorn-bdev/internal/rpcsrv"
)

// daemon holds the state every RPC handler closes over: the process-wide
// registry and the base directory newly created replica files live under.
type daemon struct {
	reg     *registry.Registry
	baseDir string

	mu              sync.RWMutex
	externalAddress string
}

func unmarshalParams[T any](raw json.RawMessage) (T, *rpcsrv.Error) {
	var p T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, rpcsrv.NewError("InvalidArgument", "bad params: %v", err)
		}
	}
	return p, nil
}

// register installs every method named in rpcsrv.Methods on s.
func (d *daemon) register(s *rpcsrv.Server) {
	s.Handle("volume_create", d.volumeCreate)
	s.Handle("volume_delete", d.volumeDelete)
	s.Handle("volume_list", d.volumeList)
	s.Handle("volume_add_replica", d.volumeAddReplica)
	s.Handle("volume_remove_replica", d.volumeRemoveReplica)
	s.Handle("volume_snapshot", d.volumeSnapshot)
	s.Handle("volume_compare", d.volumeCompare)
	s.Handle("replica_create", d.replicaCreate)
	s.Handle("replica_stop", d.replicaStop)
	s.Handle("replica_snapshot", d.replicaSnapshot)
	s.Handle("rebuild_remote", d.rebuildRemote)
	s.Handle("lvol_import", d.lvolImport)
	s.Handle("link_lvols", d.linkLvols)
	s.Handle("set_external_address", d.setExternalAddress)
}

func (d *daemon) lookupVolume(name string) (*mirror.Volume, *rpcsrv.Error) {
	e, ok := d.reg.Get(name)
	if !ok {
		return nil, rpcsrv.NewError("NotFound", "volume %q not found", name)
	}
	v, ok := e.(*mirror.Volume)
	if !ok {
		return nil, rpcsrv.NewError("Internal", "registry entry %q is not a volume", name)
	}
	return v, nil
}

func (d *daemon) volumeCreate(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeCreateParams](raw)
	if perr != nil {
		return nil, perr
	}
	if p.Name == "" || len(p.Replicas) == 0 {
		return nil, rpcsrv.NewError("InvalidArgument", "volume_create requires a name and at least one replica")
	}

	v := mirror.NewVolume(p.Name, len(p.Replicas), d.baseDir, nil)
	if err := d.reg.Register(v); err != nil {
		return nil, rpcsrv.NewError("AlreadyExists", "%v", err)
	}

	for _, spec := range p.Replicas {
		if err := attachReplicaSpec(v, spec); err != nil {
			_ = d.reg.Unregister(p.Name)
			return nil, rpcsrv.NewError("DeviceFailed", "attach replica %s: %v", spec.LVS, err)
		}
	}
	if v.State() == mirror.Online {
		_ = d.reg.Promote(p.Name)
	}
	return true, nil
}

// attachReplicaSpec attaches one volume_create/volume_add_replica replica
// slot: a remote slot (address set) dials the remote host, a local slot
// attaches an already-existing backing file an earlier replica_create sized
// (per spec.md §6's ReplicaSpec, which carries no size field of its own).
func attachReplicaSpec(v *mirror.Volume, spec rpcsrv.ReplicaSpec) error {
	if spec.Address != "" {
		return v.AddRemoteReplica(spec.Address, spec.NVMfPort, spec.ControlPort, spec.LVS, v.Name(), "")
	}
	return v.AddLocalReplica(spec.LVS, v.Name(), 0, 0)
}

func (d *daemon) volumeDelete(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeDeleteParams](raw)
	if perr != nil {
		return nil, perr
	}
	v, err := d.lookupVolume(p.Name)
	if err != nil {
		return nil, err
	}
	if closeErr := v.Close(); closeErr != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", closeErr)
	}
	_ = d.reg.Demote(p.Name)
	if unregErr := d.reg.Unregister(p.Name); unregErr != nil {
		return nil, rpcsrv.NewError("Internal", "%v", unregErr)
	}
	return true, nil
}

func (d *daemon) volumeList(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeListParams](raw)
	if perr != nil {
		return nil, perr
	}

	cat := registry.All
	switch p.Category {
	case "configuring":
		cat = registry.Configuring
	case "online", "configured":
		cat = registry.Configured
	case "offline":
		cat = registry.Offline
	}

	entries := d.reg.List(cat)
	out := make([]rpcsrv.VolumeInfo, 0, len(entries))
	for _, e := range entries {
		v, ok := e.(*mirror.Volume)
		if !ok {
			continue
		}
		out = append(out, rpcsrv.VolumeInfo{
			Name:      v.Name(),
			State:     v.State().String(),
			Replicas:  len(v.Membership()),
			BlockSize: v.BlockSize(),
		})
	}
	return out, nil
}

func (d *daemon) volumeAddReplica(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeAddReplicaParams](raw)
	if perr != nil {
		return nil, perr
	}
	v, err := d.lookupVolume(p.Name)
	if err != nil {
		return nil, err
	}
	if addErr := attachReplicaSpec(v, p.Replica); addErr != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", addErr)
	}
	return true, nil
}

func (d *daemon) volumeRemoveReplica(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeRemoveReplicaParams](raw)
	if perr != nil {
		return nil, perr
	}
	v, err := d.lookupVolume(p.Name)
	if err != nil {
		return nil, err
	}
	devName := p.Spec.LVS + "/" + p.Name
	if removeErr := v.RemoveReplica(devName); removeErr != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", removeErr)
	}
	return true, nil
}

func (d *daemon) volumeSnapshot(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeSnapshotParams](raw)
	if perr != nil {
		return nil, perr
	}
	v, err := d.lookupVolume(p.Name)
	if err != nil {
		return nil, err
	}
	result, snapErr := v.Snapshot(p.SnapshotName)
	if snapErr != nil {
		return nil, rpcsrv.NewError("Partial", "%v", snapErr)
	}
	return result, nil
}

func (d *daemon) volumeCompare(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.VolumeCompareParams](raw)
	if perr != nil {
		return nil, perr
	}
	result, err := compareBdevs(p.Bdev1, p.Bdev2)
	if err != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}
	return result, nil
}

func (d *daemon) replicaCreate(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.ReplicaCreateParams](raw)
	if perr != nil {
		return nil, perr
	}
	if p.Size <= 0 {
		return nil, rpcsrv.NewError("InvalidArgument", "replica_create requires a positive size")
	}
	r, err := replica.AttachLocalFile(d.baseDir, p.LVS, p.Name, p.Size, mirror.DefaultBlockSize)
	if err != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}

	if p.Address == "" {
		// Not published: the backing file itself persists the replica: a
		// later volume_create/volume_add_replica reopens it by path, so the
		// descriptor opened here doesn't need to outlive this call.
		defer r.Close()
		return true, nil
	}

	// Published: ServeRemoteDevice keeps serving off r's device in the
	// background, so the descriptor deliberately stays open past this call.
	if err := publishReplica(r, p.Address, p.Port); err != nil {
		r.Close()
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}
	return true, nil
}

func (d *daemon) replicaStop(raw json.RawMessage) (any, *rpcsrv.Error) {
	_, perr := unmarshalParams[rpcsrv.ReplicaStopParams](raw)
	if perr != nil {
		return nil, perr
	}
	// A standalone replica (not attached to any Volume the registry knows
	// about) holds no descriptor this daemon keeps open past the RPC that
	// created it; nothing further to release here.
	return true, nil
}

func (d *daemon) replicaSnapshot(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.ReplicaSnapshotParams](raw)
	if perr != nil {
		return nil, perr
	}
	if err := snapshotLocalFile(d.baseDir, p.LVS, p.Name, p.Snapshot); err != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}
	return true, nil
}

func (d *daemon) rebuildRemote(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.RebuildRemoteParams](raw)
	if perr != nil {
		return nil, perr
	}
	result, err := requestRebuild(d.baseDir, p)
	if err != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}
	return result, nil
}

func (d *daemon) lvolImport(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.LvolImportParams](raw)
	if perr != nil {
		return nil, perr
	}
	if err := importLvol(d.baseDir, p.LVS, p.Name, p.File); err != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}
	return true, nil
}

func (d *daemon) linkLvols(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.LinkLvolsParams](raw)
	if perr != nil {
		return nil, perr
	}
	if err := linkLvols(d.baseDir, p.Child, p.Parent); err != nil {
		return nil, rpcsrv.NewError("DeviceFailed", "%v", err)
	}
	return true, nil
}

func (d *daemon) setExternalAddress(raw json.RawMessage) (any, *rpcsrv.Error) {
	p, perr := unmarshalParams[rpcsrv.SetExternalAddressParams](raw)
	if perr != nil {
		return nil, perr
	}
	d.mu.Lock()
	d.externalAddress = p.Address
	d.mu.Unlock()
	return true, nil
}
