// Package modelapi is a thin HTTP client for the external chat-completions
// model and its batch (offline jobgroup) endpoints. No official SDK for
// this kind of API appears anywhere in the retrieval pack, so the client
// is hand-rolled over net/http -- grounded on the teacher's bounded
// http.Client usage in internal/worker/image_handler.go (fixed timeout,
// io.LimitReader-bounded body reads) applied symmetrically to outbound
// calls instead of just downloads.
package modelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"archivehub/internal/config"
	"archivehub/internal/errs"
)

// Client calls the chat-completions and batch file/job endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a Client from config.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL: cfg.ModelAPIBaseURL,
		apiKey:  cfg.ModelAPIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ChatMessage is one message in a chat-completions request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatCompletionRequest is the body posted to /chat/completions.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatCompletionResponse is the minimal response shape the archivist
// pipeline reads from.
type ChatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

// ChatCompletion calls POST /chat/completions. The caller is expected to
// wrap this in resilience.WithRetry -- an API or transport failure is
// returned as an errs.ExternalApiError with Retryable set for 429/5xx and
// for transport errors, and an undecodable body as an
// errs.SerializationError, matching spec section 4.7's bounded-retry
// requirement.
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	var resp ChatCompletionResponse
	if err := c.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return ChatCompletionResponse{}, err
	}
	return resp, nil
}

// UploadFileResponse is the response from the batch file-upload endpoint.
type UploadFileResponse struct {
	ID string `json:"id"`
}

// UploadBatchFile uploads a JSONL file with purpose=batch, returning the
// file id the batch-create call references.
func (c *Client) UploadBatchFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "batch"); err != nil {
		return "", &errs.SerializationError{Message: "write purpose field", Cause: err}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", &errs.SerializationError{Message: "create form file", Cause: err}
	}
	if _, err := part.Write(content); err != nil {
		return "", &errs.SerializationError{Message: "write form file body", Cause: err}
	}
	if err := w.Close(); err != nil {
		return "", &errs.SerializationError{Message: "close multipart writer", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", &errs.ExternalApiError{Message: "build upload request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(httpReq)

	var out UploadFileResponse
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// BatchRequest is the body posted to create a jobgroup at the external
// batch endpoint.
type BatchRequest struct {
	InputFileID      string         `json:"input_file_id"`
	Endpoint         string         `json:"endpoint"`
	CompletionWindow string         `json:"completion_window"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// BatchResponse is the external batch job's status representation.
type BatchResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	OutputFileID   string `json:"output_file_id,omitempty"`
	RequestCounts  struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
}

// CreateBatch submits a jobgroup with a 24-hour completion window.
func (c *Client) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]any) (BatchResponse, error) {
	req := BatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         "/v1/chat/completions",
		CompletionWindow: "24h",
		Metadata:         metadata,
	}
	var resp BatchResponse
	if err := c.postJSON(ctx, "/batches", req, &resp); err != nil {
		return BatchResponse{}, err
	}
	return resp, nil
}

// GetBatch retrieves the current remote status of a jobgroup.
func (c *Client) GetBatch(ctx context.Context, externalJobgroupID string) (BatchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/batches/"+externalJobgroupID, nil)
	if err != nil {
		return BatchResponse{}, &errs.ExternalApiError{Message: "build get-batch request", Cause: err}
	}
	c.authorize(httpReq)
	var resp BatchResponse
	if err := c.do(httpReq, &resp); err != nil {
		return BatchResponse{}, err
	}
	return resp, nil
}

// CancelBatch posts a cancellation for an in-flight jobgroup.
func (c *Client) CancelBatch(ctx context.Context, externalJobgroupID string) (BatchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches/"+externalJobgroupID+"/cancel", nil)
	if err != nil {
		return BatchResponse{}, &errs.ExternalApiError{Message: "build cancel-batch request", Cause: err}
	}
	c.authorize(httpReq)
	var resp BatchResponse
	if err := c.do(httpReq, &resp); err != nil {
		return BatchResponse{}, err
	}
	return resp, nil
}

// DownloadFile fetches the content of a file (e.g. a batch output file),
// bounded by maxBytes.
func (c *Client) DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, &errs.ExternalApiError{Message: "build download request", Cause: err}
	}
	c.authorize(httpReq)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errs.ExternalApiError{Message: "download file", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apiErrorForStatus(resp.StatusCode, "download file")
	}
	limited := io.LimitReader(resp.Body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &errs.ExternalApiError{Message: "read file body", Cause: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &errs.ResourceError{Code: "response_too_large", Message: fmt.Sprintf("file %s exceeds %d bytes", fileID, maxBytes)}
	}
	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return &errs.SerializationError{Message: "marshal request body", Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &errs.ExternalApiError{Message: "build request for " + path, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)
	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &errs.ExternalApiError{Message: "request failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := apiErrorForStatus(resp.StatusCode, string(body))
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.SerializationError{Message: "decode response body", Cause: err}
	}
	return nil
}

func apiErrorForStatus(status int, message string) error {
	retryable := status == http.StatusTooManyRequests || status >= 500
	return &errs.ExternalApiError{StatusCode: status, Retryable: retryable, Message: message}
}
