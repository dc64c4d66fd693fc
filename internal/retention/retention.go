// Package retention prunes the archive directory against a tiered
// keep policy: recent days, one per ISO week, one per calendar month.
package retention

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/backup"
	"github.com/edvin/shopvault/internal/model"
)

// Policy is the tiered retention rule set.
type Policy struct {
	Daily   int
	Weekly  int
	Monthly int
}

// Result reports what one prune pass kept and deleted.
type Result struct {
	Kept    []model.Archive
	Deleted []model.Archive
}

// Plan partitions archives into keep and drop sets under the policy.
// For every tier the latest archive per bucket wins (ties broken by
// name), and the union across tiers is kept. Archives named in protected
// are always kept regardless of age; they are referenced by an
// in-progress restore. Planning is pure, so running it twice over the
// same inputs yields the same sets.
func Plan(archives []model.Archive, policy Policy, protected map[string]bool) (keep, drop []model.Archive) {
	sorted := make([]model.Archive, len(archives))
	copy(sorted, archives)
	// Newest first; for equal timestamps the lexicographically greater
	// name wins the bucket.
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].Name > sorted[j].Name
	})

	keepNames := make(map[string]bool)
	markTier(sorted, policy.Daily, keepNames, func(a model.Archive) string {
		return a.CreatedAt.Format("2006-01-02")
	})
	markTier(sorted, policy.Weekly, keepNames, func(a model.Archive) string {
		year, week := a.CreatedAt.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	})
	markTier(sorted, policy.Monthly, keepNames, func(a model.Archive) string {
		return a.CreatedAt.Format("2006-01")
	})

	for _, a := range sorted {
		if keepNames[a.Name] || protected[a.Name] {
			keep = append(keep, a)
		} else {
			drop = append(drop, a)
		}
	}
	return keep, drop
}

// markTier keeps the newest archive of each of the n most recent buckets.
// sorted must be ordered newest first.
func markTier(sorted []model.Archive, n int, keep map[string]bool, bucket func(model.Archive) string) {
	seen := make(map[string]bool)
	for _, a := range sorted {
		b := bucket(a)
		if seen[b] {
			continue
		}
		if len(seen) >= n {
			break
		}
		seen[b] = true
		keep[a.Name] = true
	}
}

// Pruner applies the policy to an archive directory.
type Pruner struct {
	logger zerolog.Logger
	dir    string
	policy Policy
}

func NewPruner(logger zerolog.Logger, dir string, policy Policy) *Pruner {
	return &Pruner{
		logger: logger.With().Str("component", "retention").Logger(),
		dir:    dir,
		policy: policy,
	}
}

// Prune deletes every archive outside the keep set. It is idempotent: a
// second pass with no new archives deletes nothing. The caller holds the
// run lock, so pruning never races a backup producing new archives for
// the same set.
func (p *Pruner) Prune(ctx context.Context, protected map[string]bool) (*Result, error) {
	archives, err := backup.ListArchives(p.dir)
	if err != nil {
		return nil, err
	}

	keep, drop := Plan(archives, p.policy, protected)

	res := &Result{Kept: keep}
	for _, a := range drop {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := os.Remove(a.Path); err != nil {
			return res, fmt.Errorf("delete archive %s: %w", a.Name, err)
		}
		p.logger.Info().Str("archive", a.Name).Time("created_at", a.CreatedAt).Msg("archive pruned")
		res.Deleted = append(res.Deleted, a)
	}

	p.logger.Info().
		Int("kept", len(res.Kept)).
		Int("deleted", len(res.Deleted)).
		Msg("retention pass complete")
	return res, nil
}
