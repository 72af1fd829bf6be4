package variables

import (
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidNames(t *testing.T) {
	_, err := New(map[string]any{"1abc": 1})
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))

	_, err = New(map[string]any{"bad-name": 1})
	assert.Error(t, err)
}

func TestSpacedNamesAreNormalized(t *testing.T) {
	s, err := New(map[string]any{"welcome channel": "general"})
	require.NoError(t, err)

	assert.True(t, s.Declared("welcome_channel"))
	assert.True(t, s.Declared("welcome channel"))
	v, ok := s.Get("welcome_channel")
	assert.True(t, ok)
	assert.Equal(t, "general", v)
}

func TestSetRequiresDeclaration(t *testing.T) {
	s, err := New(map[string]any{"count": 0})
	require.NoError(t, err)

	require.NoError(t, s.Set("count", 5))
	v, _ := s.Get("count")
	assert.Equal(t, 5, v)

	err = s.Set("other", 1)
	assert.True(t, errors.Is(err, ErrUndeclared))
	assert.False(t, s.Declared("other"))
}

func TestSnapshotIsACopy(t *testing.T) {
	s, err := New(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap["a"] = 100
	v, _ := s.Get("a")
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, s.Names())
	assert.Equal(t, 2, s.Len())
}

func TestConcurrentAccess(t *testing.T) {
	s, err := New(map[string]any{"n": 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.Set("n", i)
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	assert.True(t, s.Declared("n"))
}
