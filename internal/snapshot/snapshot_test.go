package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLocal struct {
	calls map[string]string
	fail  map[string]bool
}

func (s *stubLocal) Snapshot(lvs, name, snap string) error {
	s.calls[lvs+"/"+name] = snap
	if s.fail[lvs+"/"+name] {
		return errors.New("boom")
	}
	return nil
}

type stubRemote struct {
	calls map[string]string
}

func (s *stubRemote) SnapshotRemote(address string, port uint16, lvs, name, snap string) error {
	s.calls[lvs+"/"+name] = snap
	return nil
}

func TestRunDispatchesByLocality(t *testing.T) {
	local := &stubLocal{calls: map[string]string{}, fail: map[string]bool{}}
	remote := &stubRemote{calls: map[string]string{}}

	r1 := replica.AttachLocalMemory("lvs1", "a", 1<<20, 512)
	r2 := &replica.Replica{} // zero-value stands in for a remote replica in this unit test
	r2.Locality = replica.Remote
	r2.LVS = "lvs1"
	r2.Name = "b"

	result := Run([]*replica.Replica{r1, r2}, "snap1", local, remote)
	assert.True(t, result.Success())
	assert.Equal(t, "snap1", local.calls["lvs1/a"])
	assert.Equal(t, "snap1", remote.calls["lvs1/b"])
}

func TestRunReportsPartialFailure(t *testing.T) {
	local := &stubLocal{calls: map[string]string{}, fail: map[string]bool{"lvs1/bad": true}}
	remote := &stubRemote{calls: map[string]string{}}

	good := replica.AttachLocalMemory("lvs1", "good", 1<<20, 512)
	bad := replica.AttachLocalMemory("lvs1", "bad", 1<<20, 512)

	result := Run([]*replica.Replica{good, bad}, "snap1", local, remote)
	assert.False(t, result.Success())
	var failed int
	for _, o := range result.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestFileSnapshotterCopiesBackingFile(t *testing.T) {
	dir := t.TempDir()
	backing := filepath.Join(dir, "lvs1_v1.img")
	require.NoError(t, os.WriteFile(backing, []byte("hello-data"), 0o600))

	s := &FileSnapshotter{BaseDir: dir}
	require.NoError(t, s.Snapshot("lvs1", "v1", "snap_a"))

	data, err := os.ReadFile(filepath.Join(dir, "lvs1_v1@snap_a.img"))
	require.NoError(t, err)
	assert.Equal(t, "hello-data", string(data))
}

func TestRPCSnapshotterSendsReplicaSnapshotRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var gotMethod string
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req rpcRequest
		if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&req); err != nil {
			return
		}
		gotMethod = req.Method
		json.NewEncoder(conn).Encode(rpcResponse{Result: true})
	}()

	addr := ln.Addr().(*net.TCPAddr)
	client := &RPCSnapshotter{}
	err = client.SnapshotRemote("127.0.0.1", uint16(addr.Port), "lvs1", "v1", "snap_a")
	require.NoError(t, err)
	assert.Equal(t, "replica_snapshot", gotMethod)
}
