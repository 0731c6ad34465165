package termsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFallsBackToSaneGridWhenNotATerminal(t *testing.T) {
	// fd -1 is never a valid terminal descriptor, forcing the fallback path.
	d := New(-1)
	desc, err := d.Init(640, 480)
	require.NoError(t, err)
	assert.Equal(t, 640, desc.Width)
	assert.Equal(t, 480, desc.Height)
	assert.Greater(t, d.cols, 0)
	assert.Greater(t, d.rows, 0)
}

func TestDisplayBeforeInitErrors(t *testing.T) {
	d := New(-1)
	err := d.Display(make([]byte, 16))
	assert.Error(t, err)
}
