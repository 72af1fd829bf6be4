package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRecordsOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	lock, err := Acquire(dir, "bot.yml")
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, filepath.Join(dir, LockFileName), lock.Path())
	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)

	owner := parseOwner(string(data))
	assert.Equal(t, os.Getpid(), owner.PID)
	assert.Equal(t, "bot.yml", owner.Config)
	assert.WithinDuration(t, time.Now(), owner.Started, time.Minute)
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, "")
	require.NoError(t, err)
	defer first.Release()

	second, err := Acquire(dir, "")
	require.Error(t, err)
	assert.Nil(t, second)

	var lockErr *LockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, first.Path(), lockErr.LockPath)
	assert.Contains(t, lockErr.Holder, "(running)")
	assert.Contains(t, err.Error(), "another ScriptCord instance")

	// the holder's record survives the failed attempt
	data, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), parseOwner(string(data)).PID)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, "")
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(lock.Path())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, lock.Release())

	again, err := Acquire(dir, "")
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestParseOwner(t *testing.T) {
	owner := parseOwner("pid=42\nstarted=2024-05-01T12:00:00Z\nconfig=/etc/bot.yml\njunk\n")
	assert.Equal(t, 42, owner.PID)
	assert.Equal(t, "/etc/bot.yml", owner.Config)
	assert.True(t, owner.Started.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	assert.Zero(t, parseOwner("").PID)
}
