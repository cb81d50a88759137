package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"diva-ocr/internal/models"
)

const (
	JobStateSubmitted = "submitted"
	JobStatePending   = "pending"
	JobStateResolved  = "resolved"
	JobStateCollected = "collected"
	JobStateFailed    = "failed"
)

// TrackedJob is the local view of one submitted unit of work.
type TrackedJob struct {
	ResultLink   string           `json:"resultLink"`
	Operation    models.Operation `json:"operation"`
	Collection   string           `json:"collection"`
	State        string           `json:"state"`
	RemoteStatus string           `json:"remoteStatus,omitempty"`
	Polls        int              `json:"polls"`
	Files        []string         `json:"files,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Tracker follows each result link through
// submitted -> pending -> resolved -> collected, or failed.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*TrackedJob
}

func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]*TrackedJob),
	}
}

func (t *Tracker) Submitted(link string, op models.Operation, collection string) *TrackedJob {
	job := &TrackedJob{
		ResultLink: link,
		Operation:  op,
		Collection: collection,
		State:      JobStateSubmitted,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	t.mu.Lock()
	t.jobs[link] = job
	t.mu.Unlock()

	return job.clone()
}

func (t *Tracker) Get(link string) (*TrackedJob, bool) {
	t.mu.RLock()
	job, ok := t.jobs[link]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// List returns every tracked job ordered by creation time.
func (t *Tracker) List() []*TrackedJob {
	t.mu.RLock()
	out := make([]*TrackedJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job.clone())
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ResultLink < out[j].ResultLink
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Polled records a fetch of the result document. Terminal states are never left.
func (t *Tracker) Polled(link, remoteStatus string, pending bool) {
	t.withJob(link, func(job *TrackedJob) {
		job.Polls++
		job.RemoteStatus = remoteStatus
		switch job.State {
		case JobStateSubmitted, JobStatePending:
			if pending {
				job.State = JobStatePending
			} else {
				job.State = JobStateResolved
			}
		}
	})
}

func (t *Tracker) FileWritten(link, path string) {
	t.withJob(link, func(job *TrackedJob) {
		job.Files = append(job.Files, path)
	})
}

func (t *Tracker) Collected(link string) {
	t.withJob(link, func(job *TrackedJob) {
		if job.State == JobStateResolved {
			job.State = JobStateCollected
		}
	})
}

func (t *Tracker) Failed(link string, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "job error"
	}
	t.withJob(link, func(job *TrackedJob) {
		job.State = JobStateFailed
		job.Error = msg
	})
}

func (t *Tracker) withJob(link string, fn func(job *TrackedJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[link]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *TrackedJob) clone() *TrackedJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	if len(job.Files) > 0 {
		copyJob.Files = append([]string(nil), job.Files...)
	}
	return &copyJob
}
