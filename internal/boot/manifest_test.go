package boot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
memory:
  frame_size: 4096
  total_frames: 1024
  reserved:
    - {start: 0, count: 64, label: kernel}
  device_regions:
    - {start: 64, count: 4, label: uart0, perms: [read, write]}
irq:
  lines: 16
bootstrap:
  name: init
  table_capacity: 64
  endpoints: 2
`

func TestParseManifest(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, uint64(4096), m.Memory.FrameSize)
	assert.Equal(t, uint64(1024), m.Memory.TotalFrames)
	require.Len(t, m.Memory.Reserved, 1)
	assert.Equal(t, "kernel", m.Memory.Reserved[0].Label)
	require.Len(t, m.Memory.DeviceRegions, 1)
	assert.Equal(t, []string{"read", "write"}, m.Memory.DeviceRegions[0].Perms)
	assert.Equal(t, uint32(16), m.IRQ.Lines)
	assert.Equal(t, "init", m.Bootstrap.Name)
	assert.Equal(t, 2, m.Bootstrap.Endpoints)
}

func TestParseRejectsBadFrameSize(t *testing.T) {
	_, err := Parse([]byte("memory:\n  frame_size: 1000\n  total_frames: 10\n"))
	assert.Error(t, err)
}

func TestParseRejectsOutOfBoundsRanges(t *testing.T) {
	bad := `
memory:
  frame_size: 4096
  total_frames: 16
  reserved:
    - {start: 10, count: 10, label: over}
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestParseRejectsTinyTable(t *testing.T) {
	bad := `
memory:
  frame_size: 4096
  total_frames: 64
irq:
  lines: 32
bootstrap:
  table_capacity: 4
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
