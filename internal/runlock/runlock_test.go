package runlock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(zerolog.Nop(), dir, "shop", "backup", time.Hour)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "shop.lock"))
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "backup", rec.Operation)

	lock.Release()
	_, statErr := os.Stat(filepath.Join(dir, "shop.lock"))
	assert.True(t, os.IsNotExist(statErr))

	// Reacquirable after release.
	lock, err = Acquire(zerolog.Nop(), dir, "shop", "prune", time.Hour)
	require.NoError(t, err)
	lock.Release()
}

func TestAcquire_Held(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(zerolog.Nop(), dir, "shop", "backup", time.Hour)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(zerolog.Nop(), dir, "shop", "restore", time.Hour)
	var held *HeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, os.Getpid(), held.PID)
	assert.Equal(t, "backup", held.Operation)
}

func TestAcquire_DifferentContextsDoNotCollide(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(zerolog.Nop(), dir, "shop", "backup", time.Hour)
	require.NoError(t, err)
	defer l1.Release()

	l2, err := Acquire(zerolog.Nop(), dir, "shop-staging", "backup", time.Hour)
	require.NoError(t, err)
	l2.Release()
}

func TestAcquire_EvictsExpiredLock(t *testing.T) {
	dir := t.TempDir()
	rec := record{
		PID:        os.Getpid(), // alive, but acquired too long ago
		Operation:  "backup",
		AcquiredAt: time.Now().UTC().Add(-3 * time.Hour),
	}
	writeLock(t, dir, rec)

	lock, err := Acquire(zerolog.Nop(), dir, "shop", "restore", 2*time.Hour)
	require.NoError(t, err)
	lock.Release()
}

func TestAcquire_EvictsDeadOwner(t *testing.T) {
	dir := t.TempDir()
	rec := record{
		PID:        1<<22 + 12345, // beyond any plausible live pid
		Operation:  "backup",
		AcquiredAt: time.Now().UTC(),
	}
	writeLock(t, dir, rec)

	lock, err := Acquire(zerolog.Nop(), dir, "shop", "restore", time.Hour)
	require.NoError(t, err)
	lock.Release()
}

func TestAcquire_EvictsUnreadableLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.lock"), []byte("{trunc"), 0600))

	lock, err := Acquire(zerolog.Nop(), dir, "shop", "backup", time.Hour)
	require.NoError(t, err)
	lock.Release()
}

func TestAcquire_FreshLiveLockIsNotStale(t *testing.T) {
	dir := t.TempDir()
	rec := record{
		PID:        os.Getpid(),
		Operation:  "backup",
		AcquiredAt: time.Now().UTC(),
	}
	writeLock(t, dir, rec)

	_, err := Acquire(zerolog.Nop(), dir, "shop", "restore", time.Hour)
	var held *HeldError
	assert.ErrorAs(t, err, &held)
}

func writeLock(t *testing.T, dir string, rec record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.lock"), data, 0600))
}
