package wl

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventIDsSortInCreationOrder(t *testing.T) {
	generator := NewIDGenerator(SystemClock{})

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = generator.NewEventID().String()
	}

	assert.True(t, sort.StringsAreSorted(ids))
}
