package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
)

func memVolume(t *testing.T, n int) *Volume {
	t.Helper()
	return NewVolume("vol-test", n, t.TempDir(), nil)
}

func TestVolumeAttachEstablishesGeometryAndGoesOnline(t *testing.T) {
	v := memVolume(t, 2)
	r1 := replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)
	r2 := replica.AttachLocalMemory("lvs", "r2", 1<<20, 512)

	require.NoError(t, v.attach(r1))
	assert.Equal(t, Configuring, v.State())

	require.NoError(t, v.attach(r2))
	assert.Equal(t, Online, v.State())
	assert.Len(t, v.Membership(), 2)
	assert.EqualValues(t, 512, v.BlockSize())
	assert.EqualValues(t, 1<<20, v.Size())
}

func TestVolumeAttachRejectsMismatchedGeometry(t *testing.T) {
	v := memVolume(t, 2)
	r1 := replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)
	r2 := replica.AttachLocalMemory("lvs", "r2", 2<<20, 512)

	require.NoError(t, v.attach(r1))
	err := v.attach(r2)
	require.Error(t, err)
	var mirrorErr *Error
	require.ErrorAs(t, err, &mirrorErr)
	assert.Equal(t, CodeInvalidArgument, mirrorErr.Code)
}

func TestVolumeReadWriteRoundTripsThroughDefaultChannel(t *testing.T) {
	v := memVolume(t, 2)
	require.NoError(t, v.attach(replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)))
	require.NoError(t, v.attach(replica.AttachLocalMemory("lvs", "r2", 1<<20, 512)))

	payload := []byte("hello mirrored world")
	n, err := v.WriteAt(payload, 4096)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = v.ReadAt(out, 4096)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)

	require.NoError(t, v.Flush())
	require.NoError(t, v.Discard(0, 512))
}

func TestVolumeWriteFansOutToEveryMember(t *testing.T) {
	v := memVolume(t, 3)
	r1 := replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)
	r2 := replica.AttachLocalMemory("lvs", "r2", 1<<20, 512)
	r3 := replica.AttachLocalMemory("lvs", "r3", 1<<20, 512)
	require.NoError(t, v.attach(r1))
	require.NoError(t, v.attach(r2))
	require.NoError(t, v.attach(r3))

	payload := []byte("replicated")
	_, err := v.WriteAt(payload, 0)
	require.NoError(t, err)

	for _, r := range []*replica.Replica{r1, r2, r3} {
		buf := make([]byte, len(payload))
		_, err := r.Device().ReadAt(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, payload, buf, "replica %s missed the fan-out write", r.Name)
	}
}

func TestVolumeRemoveReplicaClosesDeviceAndStopsFanOut(t *testing.T) {
	v := memVolume(t, 2)
	r1 := replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)
	r2 := replica.AttachLocalMemory("lvs", "r2", 1<<20, 512)
	require.NoError(t, v.attach(r1))
	require.NoError(t, v.attach(r2))
	// force the default channel into existence before removal so we can
	// observe the fan-out shrink.
	_, err := v.WriteAt([]byte("seed"), 0)
	require.NoError(t, err)

	require.NoError(t, v.RemoveReplica("lvs/r2"))
	assert.Len(t, v.Membership(), 1)

	_, err = v.WriteAt([]byte("after-removal"), 512)
	require.NoError(t, err)

	buf := make([]byte, len("after-removal"))
	_, err = r1.Device().ReadAt(buf, 512)
	require.NoError(t, err)
	assert.Equal(t, "after-removal", string(buf))
}

func TestVolumeRemoveReplicaUnknownNameFails(t *testing.T) {
	v := memVolume(t, 1)
	require.NoError(t, v.attach(replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)))

	err := v.RemoveReplica("lvs/ghost")
	require.Error(t, err)
	var mirrorErr *Error
	require.ErrorAs(t, err, &mirrorErr)
	assert.Equal(t, CodeNotFound, mirrorErr.Code)
}

func TestVolumeSnapshotCopiesEveryLocalReplicaBackingFile(t *testing.T) {
	dir := t.TempDir()
	v := NewVolume("vol-test", 2, dir, nil)

	require.NoError(t, v.AddLocalReplica("lvs", "r1", 1<<20, 512))
	require.NoError(t, v.AddLocalReplica("lvs", "r2", 1<<20, 512))

	_, err := v.WriteAt([]byte("payload-before-snapshot"), 0)
	require.NoError(t, err)

	result, err := v.Snapshot("snap1")
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Len(t, result.Outcomes, 2)
}

func TestVolumeCloseDrainsMembersAndChannels(t *testing.T) {
	v := memVolume(t, 1)
	require.NoError(t, v.attach(replica.AttachLocalMemory("lvs", "r1", 1<<20, 512)))
	_, err := v.WriteAt([]byte("x"), 0)
	require.NoError(t, err)

	require.NoError(t, v.Close())
	assert.Equal(t, Offline, v.State())
}
