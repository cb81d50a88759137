package diva

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// service implements the Service interface
type service struct {
	config *Config
	client *http.Client
}

// NewService creates a new DIVAServices client with the given configuration
func NewService(config Config) Service {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.TrainEndpoint == "" {
		config.TrainEndpoint = DefaultTrainEndpoint
	}
	if config.RecognizeEndpoint == "" {
		config.RecognizeEndpoint = DefaultRecognizeEndpoint
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &service{
		config: &config,
		client: client,
	}
}

// UploadCollection implements Service
func (s *service) UploadCollection(ctx context.Context, collection Collection) error {
	const op = "upload collection"
	if collection.Name == "" {
		return newError(KindInvalidRequest, op, nil, "collection name is required")
	}

	var resp map[string]json.RawMessage
	if err := s.doJSON(ctx, op, http.MethodPost, s.endpoint("collections"), collection, &resp); err != nil {
		return err
	}
	if _, ok := resp["collection"]; !ok {
		return newError(KindUnexpectedResponse, op, nil,
			"response has no collection key, collection %q most likely already existed", collection.Name)
	}
	return nil
}

// PutCollection implements Service
func (s *service) PutCollection(ctx context.Context, name string, files []FileEntry) error {
	const op = "put collection"
	if name == "" {
		return newError(KindInvalidRequest, op, nil, "collection name is required")
	}

	body := struct {
		Files []FileEntry `json:"files"`
	}{Files: files}
	return s.doJSON(ctx, op, http.MethodPut, s.endpoint("collections/"+url.PathEscape(name)), body, nil)
}

// SubmitJob implements Service
func (s *service) SubmitJob(ctx context.Context, endpoint string, body any) (*JobSubmission, error) {
	const op = "submit job"

	var resp struct {
		Results *[]ResultRef `json:"results"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.endpoint(endpoint), body, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return nil, newError(KindUnexpectedResponse, op, nil, "response from %s has no results array", endpoint)
	}
	if len(*resp.Results) == 0 {
		return nil, newError(KindUnexpectedResponse, op, nil, "response from %s has no result links", endpoint)
	}
	for i, r := range *resp.Results {
		if r.ResultLink == "" {
			return nil, newError(KindUnexpectedResponse, op, nil, "result %d from %s has no resultLink", i, endpoint)
		}
	}

	return &JobSubmission{Results: *resp.Results}, nil
}

// SubmitTraining implements Service
func (s *service) SubmitTraining(ctx context.Context, req TrainingRequest) (*JobSubmission, error) {
	if err := validate.Struct(req); err != nil {
		return nil, newError(KindInvalidRequest, "submit training", err, "invalid training request")
	}

	body := JobRequest{
		Data:       []map[string]string{{"inputData": req.Collection}},
		Parameters: req.Params,
	}
	return s.SubmitJob(ctx, s.config.TrainEndpoint, body)
}

// SubmitRecognition implements Service
func (s *service) SubmitRecognition(ctx context.Context, req RecognitionRequest) (*JobSubmission, error) {
	if err := validate.Struct(req); err != nil {
		return nil, newError(KindInvalidRequest, "submit recognition", err, "invalid recognition request")
	}

	body := JobRequest{
		Data: []map[string]string{{
			"recognitionData":  req.Collection,
			"recognitionModel": req.Model,
		}},
	}
	return s.SubmitJob(ctx, s.config.RecognizeEndpoint, body)
}

// Download implements Service
func (s *service) Download(ctx context.Context, rawURL, path string) (int64, error) {
	const op = "download"
	if path == "" {
		return 0, newError(KindDownload, op, nil, "no destination for %s", rawURL)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, newError(KindDownload, op, err, "create request for %s", rawURL)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, newError(KindCancelled, op, ctx.Err(), "fetch %s", rawURL)
		}
		return 0, newError(KindDownload, op, err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, newError(KindDownload, op, nil, "fetch %s: status=%d, body=%s", rawURL, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, newError(KindDownload, op, err, "ensure dir for %s", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, newError(KindDownload, op, err, "create %s", path)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		if ctx.Err() != nil {
			return 0, newError(KindCancelled, op, ctx.Err(), "write %s", path)
		}
		return 0, newError(KindDownload, op, err, "write %s", path)
	}
	return n, nil
}

// fetchResult reads the current result document behind link
func (s *service) fetchResult(ctx context.Context, link string) (*ResultDocument, error) {
	const op = "fetch result"

	var resp struct {
		Status *string      `json:"status"`
		Output []OutputItem `json:"output"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, link, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, newError(KindUnexpectedResponse, op, nil, "result document at %s has no status", link)
	}
	return &ResultDocument{Status: *resp.Status, Output: resp.Output}, nil
}

// endpoint resolves a path against the base URL. Absolute URLs are returned unchanged.
func (s *service) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.config.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func (s *service) doJSON(ctx context.Context, op, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return newError(KindInvalidRequest, op, err, "marshal request")
		}
		reader = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return newError(KindTransport, op, err, "create http request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return newError(KindCancelled, op, ctx.Err(), "%s %s", method, rawURL)
		}
		return newError(KindTransport, op, err, "%s %s", method, rawURL)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return newError(KindTransport, op, err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(KindTransport, op, nil, "%s %s: status=%d, body=%s", method, rawURL, resp.StatusCode, truncate(respBody, 512))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return newError(KindUnexpectedResponse, op, err, "decode response, body=%s", truncate(respBody, 512))
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + fmt.Sprintf("...(%d bytes)", len(b))
}
