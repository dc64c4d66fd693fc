package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/shopvault/internal/model"
)

func archiveAt(t *testing.T, ts time.Time) model.Archive {
	t.Helper()
	name := model.ArchiveName("shop", ts)
	a, err := model.ParseArchiveName(name)
	require.NoError(t, err)
	return *a
}

func names(archives []model.Archive) []string {
	out := make([]string, 0, len(archives))
	for _, a := range archives {
		out = append(out, a.Name)
	}
	return out
}

func TestPlan_TieredKeepSets(t *testing.T) {
	// Two archives on the newest day, then older days, weeks, and months.
	// 2026-08-25 is a Tuesday; 08-24 and 08-25 share ISO week 35.
	a := archiveAt(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)) // newest
	b := archiveAt(t, time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC))  // same day, older
	c := archiveAt(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)) // day 2, same week
	d := archiveAt(t, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)) // week 34
	e := archiveAt(t, time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)) // July
	f := archiveAt(t, time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)) // June

	policy := Policy{Daily: 2, Weekly: 1, Monthly: 1}
	keep, drop := Plan([]model.Archive{f, b, d, a, e, c}, policy, nil)

	// Daily keeps the latest of each of the 2 most recent days (a, c);
	// the weekly and monthly winners collapse onto a.
	assert.ElementsMatch(t, []string{a.Name, c.Name}, names(keep))
	assert.ElementsMatch(t, []string{b.Name, d.Name, e.Name, f.Name}, names(drop))
}

func TestPlan_DailyRunOverTwoMonths(t *testing.T) {
	// One archive per day for 60 days ending 2026-08-25.
	end := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	var archives []model.Archive
	for i := 0; i < 60; i++ {
		archives = append(archives, archiveAt(t, end.AddDate(0, 0, -i)))
	}

	policy := Policy{Daily: 7, Weekly: 4, Monthly: 6}
	keep, drop := Plan(archives, policy, nil)
	assert.Len(t, keep, len(archives)-len(drop))

	kept := make(map[string]bool)
	for _, a := range keep {
		kept[a.Name] = true
	}

	// The 7 most recent days survive the daily tier.
	for i := 0; i < 7; i++ {
		name := model.ArchiveName("shop", end.AddDate(0, 0, -i))
		assert.True(t, kept[name], "daily tier should keep %s", name)
	}

	// The range spans June, July and August; the monthly tier keeps the
	// newest archive of each.
	julyLatest := model.ArchiveName("shop", time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC))
	juneLatest := model.ArchiveName("shop", time.Date(2026, 6, 30, 3, 0, 0, 0, time.UTC))
	assert.True(t, kept[julyLatest], "monthly tier should keep the newest July archive")
	assert.True(t, kept[juneLatest], "monthly tier should keep the newest June archive")
	assert.True(t, kept[archives[0].Name], "the newest archive is always kept")
}

func TestPlan_Idempotent(t *testing.T) {
	end := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	var archives []model.Archive
	for i := 0; i < 40; i++ {
		archives = append(archives, archiveAt(t, end.AddDate(0, 0, -i)))
	}
	policy := Policy{Daily: 7, Weekly: 4, Monthly: 2}

	keep, _ := Plan(archives, policy, nil)
	keep2, drop2 := Plan(keep, policy, nil)
	assert.Empty(t, drop2, "a second pass over the survivors deletes nothing")
	assert.ElementsMatch(t, names(keep), names(keep2))
}

func TestPlan_TieBreakOnName(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	lo := archiveAt(t, ts)
	hi := lo
	hi.Name = "zzz_" + lo.Name
	hi.Context = "zzz_shop"

	keep, drop := Plan([]model.Archive{lo, hi}, Policy{Daily: 1}, nil)
	require.Len(t, keep, 1)
	assert.Equal(t, hi.Name, keep[0].Name)
	require.Len(t, drop, 1)
	assert.Equal(t, lo.Name, drop[0].Name)
}

func TestPlan_ProtectedSurvives(t *testing.T) {
	newer := archiveAt(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	ancient := archiveAt(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))

	protected := map[string]bool{ancient.Name: true}
	keep, drop := Plan([]model.Archive{newer, ancient}, Policy{Daily: 1}, protected)

	assert.ElementsMatch(t, []string{newer.Name, ancient.Name}, names(keep))
	assert.Empty(t, drop)
}

func TestPlan_ZeroPolicyKeepsNothing(t *testing.T) {
	a := archiveAt(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	keep, drop := Plan([]model.Archive{a}, Policy{}, nil)
	assert.Empty(t, keep)
	assert.Len(t, drop, 1)
}

func TestPruner_DeletesOnlyPlannedDrops(t *testing.T) {
	dir := t.TempDir()
	end := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		name := model.ArchiveName("shop", end.AddDate(0, 0, -i))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	// Stray files without a parseable archive name are never touched.
	stray := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("keep me"), 0644))

	p := NewPruner(zerolog.Nop(), dir, Policy{Daily: 3})
	res, err := p.Prune(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Kept, 3)
	assert.Len(t, res.Deleted, 7)

	for _, a := range res.Deleted {
		_, statErr := os.Stat(a.Path)
		assert.True(t, os.IsNotExist(statErr), "%s should be deleted", a.Name)
	}
	for _, a := range res.Kept {
		_, statErr := os.Stat(a.Path)
		assert.NoError(t, statErr, "%s should survive", a.Name)
	}
	_, statErr := os.Stat(stray)
	assert.NoError(t, statErr)

	// Second pass finds nothing new to delete.
	res2, err := p.Prune(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res2.Deleted)
	assert.Len(t, res2.Kept, 3)
}
