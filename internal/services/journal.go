package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diva-ocr/internal/models"
)

// JournalService keeps a local log of runs, submitted jobs and written files.
// It stores metadata only; artifacts live wherever the workflow wrote them.
type JournalService struct {
	db *sql.DB
}

func NewJournalService(db *sql.DB) *JournalService {
	return &JournalService{db: db}
}

func (s *JournalService) StartRun(ctx context.Context, baseURL string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.NewString(),
		BaseURL:   baseURL,
		Status:    models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, base_url, status, started_at)
		VALUES (?, ?, ?, ?);
	`, run.ID, run.BaseURL, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

func (s *JournalService) FinishRun(ctx context.Context, runID, failedStep string, runErr error) error {
	status := models.RunComplete
	msg := ""
	if runErr != nil {
		status = models.RunFailed
		msg = runErr.Error()
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, failed_step = ?, error = ?, finished_at = ? WHERE id = ?;
	`, status, failedStep, msg, time.Now().UTC(), runID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *JournalService) RecordJob(ctx context.Context, runID string, op models.Operation, collection, link string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (run_id, operation, collection, result_link, state, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, runID, op, collection, link, JobStateSubmitted, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// SyncJob copies the tracker's view of a job into its journal row.
func (s *JournalService) SyncJob(ctx context.Context, jobID int64, job *TrackedJob) error {
	if job == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, remote_status = ?, polls = ?, error = ?, updated_at = ? WHERE id = ?;
	`, job.State, job.RemoteStatus, job.Polls, job.Error, job.UpdatedAt, jobID); err != nil {
		return fmt.Errorf("update job %d: %w", jobID, err)
	}
	return nil
}

func (s *JournalService) RecordArtifact(ctx context.Context, jobID int64, name, url, path string, size int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (job_id, name, url, path, bytes, written_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, jobID, name, url, path, size, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *JournalService) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, base_url, status, failed_step, error, started_at, finished_at
		FROM runs WHERE id = ?;
	`, id)
	var run models.Run
	if err := row.Scan(
		&run.ID,
		&run.BaseURL,
		&run.Status,
		&run.FailedStep,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

func (s *JournalService) ListJobs(ctx context.Context, runID string) ([]models.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, operation, collection, result_link, state, remote_status, polls, error, submitted_at, updated_at
		FROM jobs WHERE run_id = ? ORDER BY id;
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.JobRecord
	for rows.Next() {
		var job models.JobRecord
		if err := rows.Scan(
			&job.ID,
			&job.RunID,
			&job.Operation,
			&job.Collection,
			&job.ResultLink,
			&job.State,
			&job.RemoteStatus,
			&job.Polls,
			&job.Error,
			&job.SubmittedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *JournalService) ListArtifacts(ctx context.Context, jobID int64) ([]models.ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, name, url, path, bytes, written_at
		FROM artifacts WHERE job_id = ? ORDER BY id;
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.ArtifactRecord
	for rows.Next() {
		var a models.ArtifactRecord
		if err := rows.Scan(&a.ID, &a.JobID, &a.Name, &a.URL, &a.Path, &a.Bytes, &a.WrittenAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
