package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectorKind(t *testing.T) {
	for _, k := range SelectorKinds {
		got, err := ParseSelectorKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseSelectorKind(" CSS_Selector ")
	require.NoError(t, err)
	assert.Equal(t, ByCSSSelector, got)

	_, err = ParseSelectorKind("shadow")
	assert.ErrorContains(t, err, "invalid selector type")
}

func TestNotFoundErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("step: %w", &NotFoundError{Kind: ByID, Value: "login"})

	assert.True(t, errors.Is(err, ErrElementNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "login", nf.Value)
	assert.Contains(t, err.Error(), `value="login"`)
}
