package helpers_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/ntsync/helpers"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.NoError(t, helpers.FoldErrors(nil))
	assert.NoError(t, helpers.FoldErrors([]error{nil, nil}))
	err := helpers.FoldErrors([]error{fmt.Errorf("first"), nil, fmt.Errorf("second %d%%", 2)})
	assert.EqualError(t, err, "first\nsecond 2%")
}
