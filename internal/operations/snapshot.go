package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"licensegate/internal/infrastructure"
)

// SnapshotVersion is the format version written by MarshalSnapshot
const SnapshotVersion = "1"

// Snapshot is the persisted form of the job set
type Snapshot struct {
	Version  string    `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	Sequence uint64    `json:"sequence"`
	Jobs     []*Job    `json:"jobs"`
}

// MarshalSnapshot encodes s as indented JSON
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode queue snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes and checks a snapshot. Jobs are returned in
// submission order.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode queue snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported queue snapshot version %q", s.Version)
	}
	seen := make(map[string]bool, len(s.Jobs))
	for i, j := range s.Jobs {
		switch {
		case j == nil:
			return nil, fmt.Errorf("queue snapshot job %d is empty", i)
		case j.ID == "":
			return nil, fmt.Errorf("queue snapshot job %d has no id", i)
		case seen[j.ID]:
			return nil, fmt.Errorf("queue snapshot has duplicate job %s", j.ID)
		case !j.Status.Valid():
			return nil, fmt.Errorf("queue snapshot job %s has unknown status %q", j.ID, j.Status)
		case !j.Priority.Valid():
			return nil, fmt.Errorf("queue snapshot job %s has unknown priority %q", j.ID, j.Priority)
		}
		seen[j.ID] = true
	}
	sort.SliceStable(s.Jobs, func(a, b int) bool { return s.Jobs[a].Sequence < s.Jobs[b].Sequence })
	return &s, nil
}

// Snapshot captures the current job set
func (q *Queue) Snapshot() *Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() *Snapshot {
	s := &Snapshot{
		Version:  SnapshotVersion,
		SavedAt:  q.clock.Now(),
		Sequence: q.seq,
		Jobs:     make([]*Job, 0, len(q.jobs)),
	}
	for _, j := range q.jobs {
		s.Jobs = append(s.Jobs, j.Clone())
	}
	return s
}

// Restore replaces the job set with s. Jobs that were processing when the
// snapshot was taken go back to pending; they did not finish.
func (q *Queue) Restore(s *Snapshot) error {
	if s == nil {
		return errors.New("nil queue snapshot")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.inFlight) > 0 {
		return fmt.Errorf("cannot restore while %d jobs are processing", len(q.inFlight))
	}

	jobs := make([]*Job, 0, len(s.Jobs))
	byID := make(map[string]*Job, len(s.Jobs))
	seq := s.Sequence
	for _, j := range s.Jobs {
		c := j.Clone()
		if c.Status == JobStatusProcessing {
			c.Status = JobStatusPending
			c.StartedAt = nil
		}
		if c.Sequence > seq {
			seq = c.Sequence
		}
		jobs = append(jobs, c)
		byID[c.ID] = c
	}
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].Sequence < jobs[b].Sequence })

	q.jobs = jobs
	q.byID = byID
	q.seq = seq
	q.dirty = false
	return nil
}

// Load restores the job set from the snapshot store, if one is configured
func (q *Queue) Load(ctx context.Context) error {
	if q.snapshots == nil {
		return nil
	}
	s, err := q.snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	if err := q.Restore(s); err != nil {
		return err
	}
	q.logger.InfoContext(ctx, "job queue restored", slog.Int("jobs", len(s.Jobs)))
	q.signal()
	return nil
}

// Persist saves the job set when it changed since the last save
func (q *Queue) Persist(ctx context.Context) error {
	if q.snapshots == nil {
		return nil
	}
	q.mu.Lock()
	if !q.dirty {
		q.mu.Unlock()
		return nil
	}
	s := q.snapshotLocked()
	q.dirty = false
	q.mu.Unlock()

	if err := q.snapshots.Save(ctx, s); err != nil {
		q.mu.Lock()
		q.dirty = true
		q.mu.Unlock()
		return err
	}
	return nil
}

// SnapshotStore persists queue snapshots
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
}

// FileSnapshotStore keeps the snapshot in a single JSON file
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore stores snapshots at path
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Load reads the snapshot; a missing file yields nil
func (s *FileSnapshotStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// Save writes the snapshot atomically
func (s *FileSnapshotStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	if err := infrastructure.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write queue snapshot: %w", err)
	}
	return nil
}
