package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longhorn-io/go-longhorn-bdev/internal/replica"
)

func TestNewTestVolumeIsOnlineAndReadWriteable(t *testing.T) {
	v := NewTestVolume("vol-test", 2, 1<<20, 512)
	assert.Equal(t, Online, v.State())

	_, err := v.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = v.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestFaultyDeviceExhaustsThenRecovers(t *testing.T) {
	faulty := NewFaultyDevice(replica.NewMemoryDevice(1<<20, 512), 2, nil)

	buf := make([]byte, 16)
	_, err := faulty.WriteAt(buf, 0)
	assert.ErrorIs(t, err, replica.ErrExhausted)
	_, err = faulty.WriteAt(buf, 0)
	assert.ErrorIs(t, err, replica.ErrExhausted)
	_, err = faulty.WriteAt(buf, 0)
	require.NoError(t, err)
}

func TestFaultyDeviceHardErrorPropagatesThroughVolume(t *testing.T) {
	v := NewVolume("vol-test", 2, "", NoOpObserver{})

	good := replica.AttachLocalMemory("test", "r0", 1<<20, 512)
	hardErr := assert.AnError
	faulty := NewFaultyDevice(replica.NewMemoryDevice(1<<20, 512), 1, hardErr)
	bad := replica.New("test/r1", replica.Local, faulty, replica.NewHome())

	require.NoError(t, v.attach(good))
	require.NoError(t, v.attach(bad))

	_, err := v.WriteAt([]byte("payload"), 0)
	require.Error(t, err)
}
