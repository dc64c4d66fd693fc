package restore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edvin/shopvault/internal/model"
)

// JobStore persists restore job records as one JSON file per job under
// the state directory. The records double as the partial-completion
// ledger: a failed job lists exactly which components were injected.
type JobStore struct {
	dir string
}

func NewJobStore(stateDir string) *JobStore {
	return &JobStore{dir: filepath.Join(stateDir, "restore-jobs")}
}

// Save writes the job record atomically.
func (s *JobStore) Save(job *model.RestoreJob) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create restore job directory: %w", err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode restore job: %w", err)
	}

	path := filepath.Join(s.dir, job.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write restore job: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write restore job: %w", err)
	}
	return nil
}

// List returns all persisted jobs, newest first.
func (s *JobStore) List() ([]model.RestoreJob, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read restore job directory: %w", err)
	}

	var jobs []model.RestoreJob
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read restore job %s: %w", e.Name(), err)
		}
		var job model.RestoreJob
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("parse restore job %s: %w", e.Name(), err)
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs, nil
}

// ActiveArchives returns the archive names referenced by running jobs,
// used by the retention manager to shield them from pruning.
func (s *JobStore) ActiveArchives() (map[string]bool, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool)
	for _, job := range jobs {
		if job.Status == model.RestoreStatusRunning && job.ArchiveName != "" {
			active[job.ArchiveName] = true
		}
	}
	return active, nil
}
