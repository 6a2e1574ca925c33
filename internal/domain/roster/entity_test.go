package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

func TestNewStudentValidation(t *testing.T) {
	now := time.Now()

	_, err := NewStudent("   ", "", now)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	s, err := NewStudent("  Alice Johnson ", " alice@example.edu ", now)
	require.NoError(t, err)
	assert.Equal(t, "Alice Johnson", s.Name)
	assert.Equal(t, "alice@example.edu", s.Email)
	assert.True(t, s.ID.IsValid())
	assert.Empty(t, s.KnownDevices)
}

func TestBindDeviceKeepsOriginalRegistrationTime(t *testing.T) {
	now := time.Now()
	s, err := NewStudent("Alice", "", now)
	require.NoError(t, err)

	id := shared.DeviceID("AA:BB:CC:DD:EE:01")
	s.BindDevice(id, now)
	s.BindDevice(id, now.Add(time.Hour))

	assert.Equal(t, now, s.KnownDevices[id])
	assert.True(t, s.Owns(id))
}

func TestUnbindDevice(t *testing.T) {
	now := time.Now()
	s, err := NewStudent("Alice", "", now)
	require.NoError(t, err)

	id := shared.DeviceID("AA:BB:CC:DD:EE:01")
	s.BindDevice(id, now)
	s.UnbindDevice(id, now.Add(time.Minute))

	assert.False(t, s.Owns(id))
}

func TestEarliestRegistration(t *testing.T) {
	now := time.Now()
	s, err := NewStudent("Alice", "", now)
	require.NoError(t, err)

	assert.True(t, s.EarliestRegistration().IsZero())

	s.BindDevice("AA:BB:CC:DD:EE:02", now.Add(time.Hour))
	s.BindDevice("AA:BB:CC:DD:EE:01", now)
	assert.Equal(t, now, s.EarliestRegistration())
}

func TestStudentCloneIsDeep(t *testing.T) {
	now := time.Now()
	s, err := NewStudent("Alice", "", now)
	require.NoError(t, err)
	s.BindDevice("AA:BB:CC:DD:EE:01", now)

	cp := s.Clone()
	cp.BindDevice("AA:BB:CC:DD:EE:02", now.Add(time.Minute))

	assert.Len(t, s.KnownDevices, 1)
	assert.Len(t, cp.KnownDevices, 2)
}
