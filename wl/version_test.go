package wl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedVersion(t *testing.T) {
	assert.False(t, AnyVersion.Checked())
	assert.True(t, NoStream.Checked())
	assert.True(t, Exactly(7).Checked())

	assert.Equal(t, "any", AnyVersion.String())
	assert.Equal(t, "0", NoStream.String())
	assert.Equal(t, "7", Exactly(7).String())
}
