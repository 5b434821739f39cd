package main

import (
	"strconv"
	"strings"

	"github.com/longhorn-io/go-longhorn-bdev/internal/rpcsrv"
)

// parseReplicaSpec parses the --replica flag's compact form,
// "lvs[:addr[:nvmf_port[:control_port]]]", into the wire shape volume_create
// and volume_add_replica expect. A bare lvs names a local replica; adding an
// address makes it remote.
func parseReplicaSpec(s string) rpcsrv.ReplicaSpec {
	parts := strings.Split(s, ":")
	spec := rpcsrv.ReplicaSpec{LVS: parts[0]}
	if len(parts) > 1 {
		spec.Address = parts[1]
	}
	if len(parts) > 2 {
		if p, err := strconv.ParseUint(parts[2], 10, 16); err == nil {
			spec.NVMfPort = uint16(p)
		}
	}
	if len(parts) > 3 {
		if p, err := strconv.ParseUint(parts[3], 10, 16); err == nil {
			spec.ControlPort = uint16(p)
		}
	}
	return spec
}
