// Package grading adapts the LMS core service to the pipeline's collaborator
// interfaces. The gateway never touches submission or grade storage directly;
// it calls the core's internal API and translates outcomes into the domain
// error taxonomy so the pipeline can classify without inspecting transports.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gradegate/internal/webhook"
	dErrors "gradegate/pkg/domain-errors"
)

// Client talks to the LMS core internal API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, used by tests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// NewClient creates an adapter for the core service at baseURL.
func NewClient(baseURL, authToken string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("core service base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetByID implements webhook.SubmissionStore.
func (c *Client) GetByID(ctx context.Context, id int64) (*webhook.Submission, error) {
	var out struct {
		ID           int64 `json:"id"`
		AssignmentID int64 `json:"assignment_id"`
		StudentID    int64 `json:"student_id"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/submissions/%d", id), nil, &out)
	if err != nil {
		return nil, err
	}
	return &webhook.Submission{ID: out.ID, AssignmentID: out.AssignmentID, StudentID: out.StudentID}, nil
}

// Apply implements webhook.GradingApplier.
func (c *Client) Apply(ctx context.Context, submission *webhook.Submission, score, maxScore float64, feedback string) error {
	body := map[string]any{
		"score":     score,
		"max_score": maxScore,
		"feedback":  feedback,
	}
	return c.do(ctx, http.MethodPut,
		fmt.Sprintf("/internal/submissions/%d/grade", submission.ID), body, nil)
}

// Notify implements webhook.Notifier.
func (c *Client) Notify(ctx context.Context, submission *webhook.Submission, score, maxScore float64) error {
	body := map[string]any{
		"student_id":    submission.StudentID,
		"submission_id": submission.ID,
		"score":         score,
		"max_score":     maxScore,
	}
	return c.do(ctx, http.MethodPost, "/internal/notifications/grade", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode core request")
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build core request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "core request abandoned")
		}
		return dErrors.Wrap(err, dErrors.CodeTransient, "core service unreachable")
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, method, path); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTransient, "decode core response")
		}
	}
	return nil
}

// classifyStatus maps core service responses onto the closed error taxonomy:
// 5xx and 429 are worth retrying, 404 is a missing subject, any other 4xx is
// a business-rule rejection that retrying cannot fix.
func classifyStatus(status int, method, path string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s %s: not found", method, path))
	case status == http.StatusTooManyRequests || status >= 500:
		return dErrors.New(dErrors.CodeTransient, fmt.Sprintf("%s %s: status %d", method, path, status))
	default:
		return dErrors.New(dErrors.CodePermanent, fmt.Sprintf("%s %s: status %d", method, path, status))
	}
}
