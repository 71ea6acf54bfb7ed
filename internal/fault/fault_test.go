package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("save pronunciation: %w", Persistence("pronunciations.save", base))

	assert.Equal(t, PersistenceError, KindOf(err))
	assert.True(t, Is(err, PersistenceError))
	assert.False(t, Is(err, ApiError))
	assert.ErrorIs(t, err, base)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, Unknown))
}

func TestAPIErrorMessageIncludesStatus(t *testing.T) {
	err := API("chat.complete", 500, errors.New("upstream"))
	require.Equal(t, ApiError, err.Kind)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "chat.complete")
}
