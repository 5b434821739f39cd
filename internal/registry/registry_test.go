package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolume struct{ name string }

func (f fakeVolume) Name() string { return f.name }

func TestRegisterPromoteDemote(t *testing.T) {
	r := New()
	v := fakeVolume{name: "v1"}
	require.NoError(t, r.Register(v))
	assert.Len(t, r.List(Configuring), 1)
	assert.Len(t, r.List(Configured), 0)

	require.NoError(t, r.Promote("v1"))
	assert.Len(t, r.List(Configuring), 0)
	assert.Len(t, r.List(Configured), 1)

	require.NoError(t, r.Demote("v1"))
	assert.Len(t, r.List(Configured), 0)
	assert.Len(t, r.List(Offline), 1)

	require.NoError(t, r.Unregister("v1"))
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get("v1")
	assert.False(t, ok)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(fakeVolume{name: "dup"}))
	err := r.Register(fakeVolume{name: "dup"})
	assert.Error(t, err)
}

func TestPromoteUnknownVolumeFails(t *testing.T) {
	r := New()
	err := r.Promote("ghost")
	assert.Error(t, err)
}

func TestUnregisterUnknownVolumeFails(t *testing.T) {
	r := New()
	err := r.Unregister("ghost")
	assert.Error(t, err)
}

func TestDefaultRegistrySingleton(t *testing.T) {
	fresh := New()
	SetDefault(fresh)
	assert.Same(t, fresh, Default())
}
