package rpcsrv

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestUnknownMethodReturnsNotFound(t *testing.T) {
	s := New()
	addr := startTestServer(t, s)

	client := &Client{Addr: addr}
	err := client.Call("no_such_method", nil, nil)
	require.Error(t, err)
	rpcErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "NotFound", rpcErr.Code)
}

func TestHandlerRoundTrip(t *testing.T) {
	s := New()
	s.Handle("volume_list", func(params json.RawMessage) (any, *Error) {
		var p VolumeListParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewError("InvalidArgument", "bad params: %v", err)
		}
		return []VolumeInfo{{Name: "v1", State: "Online", Replicas: 2, BlockSize: 4096}}, nil
	})
	addr := startTestServer(t, s)

	client := &Client{Addr: addr}
	var out []VolumeInfo
	require.NoError(t, client.Call("volume_list", VolumeListParams{Category: "all"}, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "v1", out[0].Name)
	assert.Equal(t, 2, out[0].Replicas)
}

func TestHandlerErrorPropagates(t *testing.T) {
	s := New()
	s.Handle("volume_delete", func(params json.RawMessage) (any, *Error) {
		return nil, NewError("NotFound", "volume %q not found", "ghost")
	})
	addr := startTestServer(t, s)

	client := &Client{Addr: addr}
	err := client.Call("volume_delete", VolumeDeleteParams{Name: "ghost"}, nil)
	require.Error(t, err)
	rpcErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "NotFound", rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "ghost")
}

func TestMultipleRequestsOverOneConnection(t *testing.T) {
	s := New()
	calls := 0
	s.Handle("volume_create", func(params json.RawMessage) (any, *Error) {
		calls++
		return true, nil
	})
	addr := startTestServer(t, s)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Encode(request{Method: "volume_create"}))
		var resp response
		require.NoError(t, dec.Decode(&resp))
		assert.Nil(t, resp.Error)
	}
	assert.Equal(t, 3, calls)
}
