package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"diva-ocr/internal/models"
	"diva-ocr/pkg/diva"
)

const (
	StepUploadTrainingData    = "upload training data"
	StepTrain                 = "train"
	StepRegisterModel         = "register model"
	StepUploadRecognitionData = "upload recognition data"
	StepRecognize             = "recognize"
)

// ProgressCallback is called while a workflow runs to report progress
type ProgressCallback func(step, message string, current, total int)

// StepError names the workflow step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// OutputLayout says where downloaded artifacts go.
type OutputLayout struct {
	ModelPath         string
	VisualizationPath string
	RecognizedDir     string
}

type TrainingRun struct {
	Collection string
	Params     diva.TrainingParams
}

type RecognitionRun struct {
	Collection string
	Model      string
}

type ModelRegistration struct {
	ModelPath  string
	Collection string
	Name       string
}

// Demo is the fixed upload/train/register/recognize sequence.
type Demo struct {
	TrainDataDir    string
	TrainCollection string
	Params          diva.TrainingParams
	Model           ModelRegistration
	RecoDataDir     string
	RecoCollection  string
	RecoModel       string
	// SkipUpload reuses collections uploaded by an earlier run.
	SkipUpload bool
}

type DemoResult struct {
	RunID           string
	TrainingFiles   []string
	RecognizedFiles []string
}

// WorkflowService runs the training and recognition workflows against DIVAServices.
type WorkflowService struct {
	diva     diva.Service
	tracker  *Tracker
	journal  *JournalService
	layout   OutputLayout
	baseURL  string
	pollOpts []diva.PollOption
}

// NewWorkflowService wires the workflows. journal may be nil to disable the run log.
func NewWorkflowService(
	client diva.Service,
	tracker *Tracker,
	journal *JournalService,
	layout OutputLayout,
	baseURL string,
	pollOpts ...diva.PollOption,
) *WorkflowService {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &WorkflowService{
		diva:     client,
		tracker:  tracker,
		journal:  journal,
		layout:   layout,
		baseURL:  baseURL,
		pollOpts: pollOpts,
	}
}

func (s *WorkflowService) Tracker() *Tracker {
	return s.tracker
}

// UploadData builds a collection from dir and uploads it.
func (s *WorkflowService) UploadData(ctx context.Context, dir, collection string) error {
	col, err := diva.BuildCollection(collection, dir)
	if err != nil {
		return err
	}
	log.Printf("uploading %d files from %s as collection %s", len(col.Files), dir, collection)
	if err := s.diva.UploadCollection(ctx, col); err != nil {
		return err
	}
	return nil
}

// RegisterModel uploads a trained model file into a model collection.
func (s *WorkflowService) RegisterModel(ctx context.Context, reg ModelRegistration) error {
	entry, err := diva.EncodeFile(reg.ModelPath, reg.Name)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	log.Printf("registering model %s as %s/%s.%s", reg.ModelPath, reg.Collection, entry.Name, entry.Extension)
	return s.diva.PutCollection(ctx, reg.Collection, []diva.FileEntry{entry})
}

// Train submits a training job and downloads the trained model and the
// training error plot. It returns the written paths.
func (s *WorkflowService) Train(ctx context.Context, run TrainingRun, progress ProgressCallback) ([]string, error) {
	var files []string
	err := s.withRun(ctx, func(runID string) error {
		var err error
		files, err = s.train(ctx, runID, run, progress)
		return err
	})
	return files, err
}

// Recognize submits a recognition job and downloads every output file into
// the recognized-text directory. It returns the written paths.
func (s *WorkflowService) Recognize(ctx context.Context, run RecognitionRun, progress ProgressCallback) ([]string, error) {
	var files []string
	err := s.withRun(ctx, func(runID string) error {
		var err error
		files, err = s.recognize(ctx, runID, run, progress)
		return err
	})
	return files, err
}

// RunDemo runs the whole sequence and stops at the first failing step.
func (s *WorkflowService) RunDemo(ctx context.Context, demo Demo, progress ProgressCallback) (*DemoResult, error) {
	result := &DemoResult{}
	err := s.withRun(ctx, func(runID string) error {
		result.RunID = runID
		steps := []struct {
			name string
			skip bool
			fn   func() error
		}{
			{StepUploadTrainingData, demo.SkipUpload, func() error {
				return s.UploadData(ctx, demo.TrainDataDir, demo.TrainCollection)
			}},
			{StepTrain, false, func() error {
				var err error
				result.TrainingFiles, err = s.train(ctx, runID, TrainingRun{Collection: demo.TrainCollection, Params: demo.Params}, progress)
				return err
			}},
			{StepRegisterModel, false, func() error {
				return s.RegisterModel(ctx, demo.Model)
			}},
			{StepUploadRecognitionData, demo.SkipUpload, func() error {
				return s.UploadData(ctx, demo.RecoDataDir, demo.RecoCollection)
			}},
			{StepRecognize, false, func() error {
				var err error
				result.RecognizedFiles, err = s.recognize(ctx, runID, RecognitionRun{Collection: demo.RecoCollection, Model: demo.RecoModel}, progress)
				return err
			}},
		}

		for i, step := range steps {
			if step.skip {
				log.Printf("step %d/%d %s: skipped", i+1, len(steps), step.name)
				continue
			}
			if progress != nil {
				progress(step.name, "Starting", i, len(steps))
			}
			log.Printf("step %d/%d %s", i+1, len(steps), step.name)
			if err := step.fn(); err != nil {
				return &StepError{Step: step.name, Err: err}
			}
		}
		if progress != nil {
			progress("complete", "Demo complete", len(steps), len(steps))
		}
		return nil
	})
	return result, err
}

func (s *WorkflowService) train(ctx context.Context, runID string, run TrainingRun, progress ProgressCallback) ([]string, error) {
	sub, err := s.diva.SubmitTraining(ctx, diva.TrainingRequest{Collection: run.Collection, Params: run.Params})
	if err != nil {
		return nil, err
	}

	dest := func(a diva.Artifact) (string, bool) {
		switch {
		case strings.Contains(a.Name, "minModel"):
			return s.layout.ModelPath, true
		case strings.Contains(a.Name, "trainingError"):
			return s.layout.VisualizationPath, true
		}
		return "", false
	}
	return s.collectJobs(ctx, runID, StepTrain, models.OperationTraining, run.Collection, sub,
		diva.NameContains("minModel", "trainingError"), dest, progress)
}

func (s *WorkflowService) recognize(ctx context.Context, runID string, run RecognitionRun, progress ProgressCallback) ([]string, error) {
	sub, err := s.diva.SubmitRecognition(ctx, diva.RecognitionRequest{Collection: run.Collection, Model: run.Model})
	if err != nil {
		return nil, err
	}

	dest := func(a diva.Artifact) (string, bool) {
		name := filepath.Base(filepath.FromSlash(a.Name))
		if name == "." || name == ".." || name == string(filepath.Separator) {
			log.Printf("skipping output with unusable name %q", a.Name)
			return "", false
		}
		return filepath.Join(s.layout.RecognizedDir, name), true
	}
	return s.collectJobs(ctx, runID, StepRecognize, models.OperationRecognition, run.Collection, sub,
		diva.All, dest, progress)
}

// collectJobs resolves every result link of sub and downloads the selected outputs.
func (s *WorkflowService) collectJobs(
	ctx context.Context,
	runID, step string,
	op models.Operation,
	collection string,
	sub *diva.JobSubmission,
	filter diva.OutputFilter,
	dest func(diva.Artifact) (string, bool),
	progress ProgressCallback,
) ([]string, error) {
	links := sub.Links()
	var written []string

	for i, link := range links {
		log.Printf("%s: job %d/%d submitted, result link %s", step, i+1, len(links), link)
		s.tracker.Submitted(link, op, collection)
		jobID := s.recordJob(ctx, runID, op, collection, link)

		opts := make([]diva.PollOption, 0, len(s.pollOpts)+1)
		opts = append(opts, s.pollOpts...)
		opts = append(opts, diva.WithPollObserver(func(attempt int, doc *diva.ResultDocument) {
			pending := doc.Status == diva.StatusPlanned
			s.tracker.Polled(link, doc.Status, pending)
			if pending {
				log.Printf("%s: %s still %s (poll %d)", step, link, doc.Status, attempt)
			}
			if progress != nil {
				progress(step, fmt.Sprintf("Poll %d: %s", attempt, doc.Status), i, len(links))
			}
		}))

		doc, err := s.diva.ResolveResult(ctx, link, opts...)
		if err == nil {
			err = doc.Err()
		}
		if err != nil {
			s.fail(ctx, jobID, link, err)
			return written, err
		}

		for artifact := range diva.CollectOutputs(doc, filter) {
			path, ok := dest(artifact)
			if !ok {
				continue
			}
			n, err := s.diva.Download(ctx, artifact.URL, path)
			if err != nil {
				s.fail(ctx, jobID, link, err)
				return written, err
			}
			log.Printf("%s: wrote %s (%d bytes)", step, path, n)
			s.tracker.FileWritten(link, path)
			s.recordArtifact(ctx, jobID, artifact, path, n)
			written = append(written, path)
		}

		s.tracker.Collected(link)
		s.syncJob(ctx, jobID, link)
		if progress != nil {
			progress(step, fmt.Sprintf("Collected %s", link), i+1, len(links))
		}
	}
	return written, nil
}

func (s *WorkflowService) fail(ctx context.Context, jobID int64, link string, err error) {
	s.tracker.Failed(link, err.Error())
	s.syncJob(ctx, jobID, link)
}

// withRun wraps fn in a journal run when the journal is enabled.
func (s *WorkflowService) withRun(ctx context.Context, fn func(runID string) error) error {
	if s.journal == nil {
		return fn("")
	}

	run, err := s.journal.StartRun(ctx, s.baseURL)
	if err != nil {
		return fmt.Errorf("start journal run: %w", err)
	}
	runErr := fn(run.ID)

	failedStep := ""
	var stepErr *StepError
	if errors.As(runErr, &stepErr) {
		failedStep = stepErr.Step
	}
	if err := s.journal.FinishRun(context.WithoutCancel(ctx), run.ID, failedStep, runErr); err != nil {
		log.Printf("journal: %v", err)
	}
	return runErr
}

// Journal write failures are logged and do not stop the workflow.

func (s *WorkflowService) recordJob(ctx context.Context, runID string, op models.Operation, collection, link string) int64 {
	if s.journal == nil || runID == "" {
		return 0
	}
	id, err := s.journal.RecordJob(ctx, runID, op, collection, link)
	if err != nil {
		log.Printf("journal: %v", err)
		return 0
	}
	return id
}

func (s *WorkflowService) syncJob(ctx context.Context, jobID int64, link string) {
	if s.journal == nil || jobID == 0 {
		return
	}
	job, _ := s.tracker.Get(link)
	if err := s.journal.SyncJob(context.WithoutCancel(ctx), jobID, job); err != nil {
		log.Printf("journal: %v", err)
	}
}

func (s *WorkflowService) recordArtifact(ctx context.Context, jobID int64, a diva.Artifact, path string, n int64) {
	if s.journal == nil || jobID == 0 {
		return
	}
	if err := s.journal.RecordArtifact(ctx, jobID, a.Name, a.URL, path, n); err != nil {
		log.Printf("journal: %v", err)
	}
}
