package rpcsrv

// The parameter and result shapes below mirror spec.md §6's method table
// verbatim; they exist so both cmd/longhornd's handler wiring and
// cmd/longhornctl's request encoding share one definition of the wire
// shape instead of each re-deriving it from the prose table.

// ReplicaSpec describes one replica slot in a volume_create request.
type ReplicaSpec struct {
	LVS         string `json:"lvs"`
	Address     string `json:"addr,omitempty"`
	NVMfPort    uint16 `json:"nvmf_port,omitempty"`
	ControlPort uint16 `json:"control_port,omitempty"`
}

// VolumeCreateParams is volume_create's parameter object.
type VolumeCreateParams struct {
	Name     string        `json:"name"`
	Address  string        `json:"address,omitempty"`
	Replicas []ReplicaSpec `json:"replicas"`
}

// VolumeDeleteParams is volume_delete's parameter object.
type VolumeDeleteParams struct {
	Name string `json:"name"`
}

// VolumeListParams is volume_list's parameter object.
type VolumeListParams struct {
	Category string `json:"category"` // all | online | configuring | offline
}

// VolumeInfo is one entry in a volume_list response.
type VolumeInfo struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Replicas  int    `json:"replicas"`
	BlockSize int    `json:"block_size"`
}

// VolumeAddReplicaParams is volume_add_replica's parameter object.
type VolumeAddReplicaParams struct {
	Name    string      `json:"name"`
	Replica ReplicaSpec `json:"replica"`
}

// VolumeRemoveReplicaParams is volume_remove_replica's parameter object.
type VolumeRemoveReplicaParams struct {
	Name string      `json:"name"`
	Spec ReplicaSpec `json:"spec"`
}

// VolumeSnapshotParams is volume_snapshot's parameter object.
type VolumeSnapshotParams struct {
	Name         string `json:"name"`
	SnapshotName string `json:"snapshot_name"`
}

// VolumeCompareParams is volume_compare's parameter object.
type VolumeCompareParams struct {
	Bdev1 string `json:"bdev1"`
	Bdev2 string `json:"bdev2"`
}

// VolumeCompareResult is volume_compare's result object.
type VolumeCompareResult struct {
	Identical    bool    `json:"identical"`
	FirstDiffOff int64   `json:"first_diff_offset,omitempty"`
}

// ReplicaCreateParams is replica_create's parameter object.
type ReplicaCreateParams struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	LVS     string `json:"lvs"`
	Address string `json:"addr,omitempty"`
	Port    uint16 `json:"port,omitempty"`
}

// ReplicaStopParams is replica_stop's parameter object.
type ReplicaStopParams struct {
	Name string `json:"name"`
	LVS  string `json:"lvs"`
}

// ReplicaSnapshotParams is replica_snapshot's parameter object.
type ReplicaSnapshotParams struct {
	Name     string `json:"name"`
	Snapshot string `json:"snapshot"`
	LVS      string `json:"lvs"`
}

// RebuildRemoteParams is rebuild_remote's parameter object.
type RebuildRemoteParams struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Name    string `json:"name"`
	Prefix  string `json:"prefix"`
	LVS     string `json:"lvs"`
}

// LvolImportParams is lvol_import's parameter object.
type LvolImportParams struct {
	Name string `json:"name"`
	LVS  string `json:"lvs"`
	File string `json:"file"`
}

// LinkLvolsParams is link_lvols's parameter object.
type LinkLvolsParams struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// SetExternalAddressParams is set_external_address's parameter object.
type SetExternalAddressParams struct {
	Address string `json:"addr"`
}

// Methods lists every control-surface method name (spec.md §6).
// cmd/longhornd's register installs a handler for each of these names;
// no code iterates this list.
var Methods = []string{
	"volume_create",
	"volume_delete",
	"volume_list",
	"volume_add_replica",
	"volume_remove_replica",
	"volume_snapshot",
	"volume_compare",
	"replica_create",
	"replica_stop",
	"replica_snapshot",
	"rebuild_remote",
	"lvol_import",
	"link_lvols",
	"set_external_address",
}
