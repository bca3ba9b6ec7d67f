package kerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		code uint32
	}{
		{nil, CodeOK},
		{ErrInvalidCapability, CodeInvalidCapability},
		{ErrPermissionDenied, CodePermissionDenied},
		{ErrNotFound, CodeNotFound},
		{ErrTimeout, CodeTimeout},
		{ErrInvalidArgument, CodeInvalidArgument},
		{ErrTableFull, CodeTableFull},
		{ErrOutOfMemory, CodeOutOfMemory},
		{ErrOverlap, CodeOverlap},
		{ErrPageFault, CodePageFault},
		{ErrEndpointDestroyed, CodeEndpointDestroyed},
		{fmt.Errorf("something else"), CodeGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err))
	}
}

func TestCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("lookup slot 4: %w", ErrInvalidCapability)
	assert.Equal(t, CodeInvalidCapability, Code(wrapped))
}

func TestMessageCoversEveryCode(t *testing.T) {
	for _, code := range []uint32{
		CodeOK, CodeGeneral, CodePermissionDenied, CodeNotFound,
		CodeTimeout, CodeInvalidArgument, CodeTableFull, CodeOutOfMemory,
		CodeOverlap, CodePageFault, CodeEndpointDestroyed, CodeInvalidCapability,
	} {
		assert.NotEmpty(t, Message(code), "code %d", code)
	}
}

func TestInvariantPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		iv, ok := r.(InvariantViolation)
		require.True(t, ok)
		assert.Equal(t, "cap", iv.Subsystem)
		assert.Contains(t, iv.Detail, "refcount")
	}()
	Invariant("cap", "negative refcount for slot %d", 3)
}
