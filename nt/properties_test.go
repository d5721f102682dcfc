package nt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/ntsync/nt"
)

func TestPropertiesMerge(t *testing.T) {
	t.Parallel()

	p := nt.Properties{"persistent": true, "unit": "V"}
	merged, err := p.Merge(nt.Properties{"unit": nil, "retained": true, "max": 12.5})
	require.NoError(t, err)
	assert.Equal(t, nt.Properties{"persistent": true, "retained": true, "max": 12.5}, merged)
	assert.Equal(t, "V", p["unit"], "receiver unchanged")
	assert.True(t, merged.Persistent())
	assert.True(t, merged.Retained())
}

func TestPropertiesMergeNil(t *testing.T) {
	t.Parallel()

	var p nt.Properties
	merged, err := p.Merge(nt.Properties{"retained": true})
	require.NoError(t, err)
	assert.Equal(t, nt.Properties{"retained": true}, merged)

	same, err := merged.Merge(nil)
	require.NoError(t, err)
	assert.Equal(t, merged, same)
}

func TestPropertiesFlags(t *testing.T) {
	t.Parallel()

	p := nt.Properties{}
	assert.False(t, p.Persistent())
	assert.True(t, p.Cached())
	p["cached"] = false
	p["persistent"] = "yes"
	assert.False(t, p.Cached())
	assert.False(t, p.Persistent(), "non-bool is false")
}
