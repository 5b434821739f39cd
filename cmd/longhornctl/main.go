// Command longhornctl is a thin cobra-based client for longhornd's control
// surface, one subcommand per method in spec.md §6's RPC table.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longhorn-io/go-longhorn-bdev/internal/rpcsrv"
)

var addr string

func client() *rpcsrv.Client {
	return &rpcsrv.Client{Addr: addr}
}

// call issues method with params, prints the decoded result as JSON, and
// exits non-zero on an RPC error so scripting call sites can trap it.
func call(method string, params any) {
	var result json.RawMessage
	if err := client().Call(method, params, &result); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if len(result) == 0 {
		fmt.Println("ok")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func main() {
	root := &cobra.Command{
		Use:   "longhornctl",
		Short: "control client for a longhornd synchronous-mirror daemon",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:9501", "longhornd control address")

	root.AddCommand(
		volumeCreateCmd(),
		volumeDeleteCmd(),
		volumeListCmd(),
		volumeAddReplicaCmd(),
		volumeRemoveReplicaCmd(),
		volumeSnapshotCmd(),
		volumeCompareCmd(),
		replicaCreateCmd(),
		replicaStopCmd(),
		replicaSnapshotCmd(),
		rebuildRemoteCmd(),
		lvolImportCmd(),
		linkLvolsCmd(),
		setExternalAddressCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func volumeCreateCmd() *cobra.Command {
	var (
		name     string
		replicas []string
	)
	cmd := &cobra.Command{
		Use:   "volume-create",
		Short: "create a volume from one or more lvs[:addr[:nvmf_port[:control_port]]] replica slots",
		Run: func(cmd *cobra.Command, args []string) {
			specs := make([]rpcsrv.ReplicaSpec, 0, len(replicas))
			for _, r := range replicas {
				specs = append(specs, parseReplicaSpec(r))
			}
			call("volume_create", rpcsrv.VolumeCreateParams{Name: name, Replicas: specs})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "volume name")
	cmd.Flags().StringSliceVar(&replicas, "replica", nil, "lvs[:addr[:nvmf_port[:control_port]]], repeatable")
	cmd.MarkFlagRequired("name")
	return cmd
}

func volumeDeleteCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "volume-delete",
		Short: "close and unregister a volume (a ublk export of it is not removed)",
		Run: func(cmd *cobra.Command, args []string) {
			call("volume_delete", rpcsrv.VolumeDeleteParams{Name: name})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "volume name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func volumeListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "volume-list",
		Short: "list volumes, optionally filtered by state",
		Run: func(cmd *cobra.Command, args []string) {
			call("volume_list", rpcsrv.VolumeListParams{Category: category})
		},
	}
	cmd.Flags().StringVar(&category, "category", "all", "all|configuring|online|offline")
	return cmd
}

func volumeAddReplicaCmd() *cobra.Command {
	var (
		name    string
		replica string
	)
	cmd := &cobra.Command{
		Use:   "volume-add-replica",
		Short: "add a replica to an existing volume, triggering rebuild if online",
		Run: func(cmd *cobra.Command, args []string) {
			call("volume_add_replica", rpcsrv.VolumeAddReplicaParams{Name: name, Replica: parseReplicaSpec(replica)})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "volume name")
	cmd.Flags().StringVar(&replica, "replica", "", "lvs[:addr[:nvmf_port[:control_port]]]")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("replica")
	return cmd
}

func volumeRemoveReplicaCmd() *cobra.Command {
	var (
		name    string
		replica string
	)
	cmd := &cobra.Command{
		Use:   "volume-remove-replica",
		Short: "remove a replica from a volume",
		Run: func(cmd *cobra.Command, args []string) {
			call("volume_remove_replica", rpcsrv.VolumeRemoveReplicaParams{Name: name, Spec: parseReplicaSpec(replica)})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "volume name")
	cmd.Flags().StringVar(&replica, "replica", "", "lvs[:addr[:nvmf_port[:control_port]]]")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("replica")
	return cmd
}

func volumeSnapshotCmd() *cobra.Command {
	var name, snapshotName string
	cmd := &cobra.Command{
		Use:   "volume-snapshot",
		Short: "snapshot every replica of a volume as a pause-coordinated unit",
		Run: func(cmd *cobra.Command, args []string) {
			call("volume_snapshot", rpcsrv.VolumeSnapshotParams{Name: name, SnapshotName: snapshotName})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "volume name")
	cmd.Flags().StringVar(&snapshotName, "snapshot-name", "", "snapshot name")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("snapshot-name")
	return cmd
}

func volumeCompareCmd() *cobra.Command {
	var bdev1, bdev2 string
	cmd := &cobra.Command{
		Use:   "volume-compare",
		Short: "block-wise diff two bdevs (diagnostics)",
		Run: func(cmd *cobra.Command, args []string) {
			call("volume_compare", rpcsrv.VolumeCompareParams{Bdev1: bdev1, Bdev2: bdev2})
		},
	}
	cmd.Flags().StringVar(&bdev1, "bdev1", "", "first bdev, lvs/name")
	cmd.Flags().StringVar(&bdev2, "bdev2", "", "second bdev, lvs/name")
	cmd.MarkFlagRequired("bdev1")
	cmd.MarkFlagRequired("bdev2")
	return cmd
}

func replicaCreateCmd() *cobra.Command {
	var (
		name, lvs, address string
		size               int64
		port               uint16
	)
	cmd := &cobra.Command{
		Use:   "replica-create",
		Short: "create a standalone local replica, optionally published over NVMf",
		Run: func(cmd *cobra.Command, args []string) {
			call("replica_create", rpcsrv.ReplicaCreateParams{Name: name, Size: size, LVS: lvs, Address: address, Port: port})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "replica name")
	cmd.Flags().StringVar(&lvs, "lvs", "", "logical volume store name")
	cmd.Flags().Int64Var(&size, "size", 0, "size in bytes")
	cmd.Flags().StringVar(&address, "address", "", "address to publish on, if any")
	cmd.Flags().Uint16Var(&port, "port", 0, "port to publish on, if any")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("lvs")
	cmd.MarkFlagRequired("size")
	return cmd
}

func replicaStopCmd() *cobra.Command {
	var name, lvs string
	cmd := &cobra.Command{
		Use:   "replica-stop",
		Short: "stop a standalone replica",
		Run: func(cmd *cobra.Command, args []string) {
			call("replica_stop", rpcsrv.ReplicaStopParams{Name: name, LVS: lvs})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "replica name")
	cmd.Flags().StringVar(&lvs, "lvs", "", "logical volume store name")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("lvs")
	return cmd
}

func replicaSnapshotCmd() *cobra.Command {
	var name, lvs, snapshot string
	cmd := &cobra.Command{
		Use:   "replica-snapshot",
		Short: "snapshot a single replica outside of a volume-wide pause",
		Run: func(cmd *cobra.Command, args []string) {
			call("replica_snapshot", rpcsrv.ReplicaSnapshotParams{Name: name, LVS: lvs, Snapshot: snapshot})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "replica name")
	cmd.Flags().StringVar(&lvs, "lvs", "", "logical volume store name")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "snapshot name")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("lvs")
	cmd.MarkFlagRequired("snapshot")
	return cmd
}

func rebuildRemoteCmd() *cobra.Command {
	var (
		address, name, prefix, lvs string
		port                       uint16
	)
	cmd := &cobra.Command{
		Use:   "rebuild-remote",
		Short: "pull a differential rebuild stream from a remote donor",
		Run: func(cmd *cobra.Command, args []string) {
			call("rebuild_remote", rpcsrv.RebuildRemoteParams{Address: address, Port: port, Name: name, Prefix: prefix, LVS: lvs})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "donor address")
	cmd.Flags().Uint16Var(&port, "port", 0, "donor rebuild port")
	cmd.Flags().StringVar(&name, "name", "", "blob/snapshot name")
	cmd.Flags().StringVar(&prefix, "prefix", "", "name prefix for the rebuilt target")
	cmd.Flags().StringVar(&lvs, "lvs", "", "logical volume store name")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("port")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("lvs")
	return cmd
}

func lvolImportCmd() *cobra.Command {
	var name, lvs, file string
	cmd := &cobra.Command{
		Use:   "lvol-import",
		Short: "bulk import a sparse blob file as a replica's backing file",
		Run: func(cmd *cobra.Command, args []string) {
			call("lvol_import", rpcsrv.LvolImportParams{Name: name, LVS: lvs, File: file})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "replica name")
	cmd.Flags().StringVar(&lvs, "lvs", "", "logical volume store name")
	cmd.Flags().StringVar(&file, "file", "", "source file path")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("lvs")
	cmd.MarkFlagRequired("file")
	return cmd
}

func linkLvolsCmd() *cobra.Command {
	var child, parent string
	cmd := &cobra.Command{
		Use:   "link-lvols",
		Short: "set a blob's snapshot-parent attribute",
		Run: func(cmd *cobra.Command, args []string) {
			call("link_lvols", rpcsrv.LinkLvolsParams{Child: child, Parent: parent})
		},
	}
	cmd.Flags().StringVar(&child, "child", "", "child blob name")
	cmd.Flags().StringVar(&parent, "parent", "", "parent blob name")
	cmd.MarkFlagRequired("child")
	cmd.MarkFlagRequired("parent")
	return cmd
}

func setExternalAddressCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "set-external-address",
		Short: "tell the daemon the address peers should use to reach it",
		Run: func(cmd *cobra.Command, args []string) {
			call("set_external_address", rpcsrv.SetExternalAddressParams{Address: address})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "externally reachable address")
	cmd.MarkFlagRequired("address")
	return cmd
}
