package diva

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Service defines the operations offered by a DIVAServices deployment.
type Service interface {
	// UploadCollection creates a new named collection from local file entries
	UploadCollection(ctx context.Context, collection Collection) error

	// PutCollection replaces the files of the named collection
	PutCollection(ctx context.Context, name string, files []FileEntry) error

	// SubmitJob posts a raw job request to the given endpoint
	SubmitJob(ctx context.Context, endpoint string, body any) (*JobSubmission, error)

	// SubmitTraining validates the training parameters and submits an OCRopus training job
	SubmitTraining(ctx context.Context, req TrainingRequest) (*JobSubmission, error)

	// SubmitRecognition submits an OCRopus recognition job
	SubmitRecognition(ctx context.Context, req RecognitionRequest) (*JobSubmission, error)

	// ResolveResult polls a result link until the job leaves the pending state
	ResolveResult(ctx context.Context, link string, opts ...PollOption) (*ResultDocument, error)

	// Download fetches an artifact and writes it to path, returning the bytes written
	Download(ctx context.Context, url, path string) (int64, error)
}

// Config holds configuration for the DIVAServices client.
type Config struct {
	// Root of the API, e.g. http://divaservices.unifr.ch/api/v2
	BaseURL string

	// Endpoint paths relative to BaseURL
	TrainEndpoint     string
	RecognizeEndpoint string

	// Pause between two result polls (default: 5s)
	PollInterval time.Duration

	// Upper bound for a whole ResolveResult call, zero means no deadline
	PollTimeout time.Duration

	// HTTP client timeout (default: 300s)
	Timeout time.Duration

	// Optional transport override, mostly for tests
	HTTPClient *http.Client
}

const (
	DefaultBaseURL           = "http://divaservices.unifr.ch/api/v2"
	DefaultTrainEndpoint     = "ocr/ocropustraining/1"
	DefaultRecognizeEndpoint = "ocr/ocropusrecognize/1"
	DefaultPollInterval      = 5 * time.Second
	DefaultTimeout           = 300 * time.Second

	// StatusPlanned is the pending sentinel reported while a job waits to run.
	StatusPlanned = "planned"
	StatusDone    = "done"
	StatusError   = "error"
	StatusFailed  = "failed"
)

// FileType classifies the payload of a collection file entry.
type FileType string

const (
	FileTypeText  FileType = "text"
	FileTypeImage FileType = "image"
)

// FileEntry is a single file of a collection. Value holds UTF-8 text for
// text entries and standard base64 for image entries.
type FileEntry struct {
	Type      FileType `json:"type"`
	Value     string   `json:"value"`
	Name      string   `json:"name"`
	Extension string   `json:"extension"`
}

// Collection is a named group of files stored remotely and used as job input.
type Collection struct {
	Name  string      `json:"name"`
	Files []FileEntry `json:"files"`
}

// TrainingParams are the OCRopus training parameters.
type TrainingParams struct {
	LineHeight      int `json:"lineHeight" validate:"gt=0"`
	TrainIterations int `json:"trainIteration" validate:"gt=0"`
	SaveFrequency   int `json:"saveFreq" validate:"gt=0"`
}

// TrainingRequest trains a model on a previously uploaded collection.
type TrainingRequest struct {
	Collection string         `validate:"required"`
	Params     TrainingParams
}

// RecognitionRequest runs recognition on a collection with an uploaded model.
// Model is a collection-qualified file identifier such as "ocr_models/greekPoly.gz".
type RecognitionRequest struct {
	Collection string `validate:"required"`
	Model      string `validate:"required"`
}

// JobRequest is the wire body of a job submission. Each element of Data is one
// unit of work and produces one result link.
type JobRequest struct {
	Data       []map[string]string `json:"data"`
	Parameters any                 `json:"parameters,omitempty"`
}

// ResultRef points at the result document of one unit of work.
type ResultRef struct {
	ResultLink string `json:"resultLink"`
}

// JobSubmission is the response to a job submission.
type JobSubmission struct {
	Results []ResultRef `json:"results"`
}

// Links returns the result links in submission order.
func (s *JobSubmission) Links() []string {
	if s == nil {
		return nil
	}
	links := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		links = append(links, r.ResultLink)
	}
	return links
}

// OutputFile describes a downloadable artifact.
type OutputFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// OutputItem is one entry of a result document's output list. Items that are
// not files (log lines, numbers) leave File nil.
type OutputItem struct {
	File *OutputFile `json:"file,omitempty"`
}

// ResultDocument is the state of a submitted unit of work.
type ResultDocument struct {
	Status string       `json:"status"`
	Output []OutputItem `json:"output,omitempty"`
}

// Artifact is a collected (declared name, download url) pair.
type Artifact struct {
	Name string
	URL  string
}

// OutputFilter selects which output files to collect.
type OutputFilter func(file OutputFile) bool

// Outcome is the interpretation of a result document's status.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
