package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryServesRegisteredView(t *testing.T) {
	registry := NewRegistry()

	var view ViewFunction = func(ctx context.Context, params map[string]string) (any, error) {
		return "owner is " + params["owner"], nil
	}
	registry.Register("owners", view)

	snapshot, err := registry.Query(context.TODO(), "owners", map[string]string{"owner": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "owner is ada", snapshot)
}

func TestRegistryRejectsUnknownView(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Query(context.TODO(), "missing", nil)
	require.Error(t, err)
	assert.True(t, IsViewNotFound(err))

	var notFound *ViewNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.View)
}
