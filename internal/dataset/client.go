// Package dataset implements the client side of the open-data export
// protocol: initiate an export job, poll until a download link appears,
// fetch and parse the linked table.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/period"
	"github.com/seayun/hdbmap/internal/retry"
)

// ErrPollTimeout is returned when the export job produces no download link
// within the polling budget. The caller may retry the whole period later.
var ErrPollTimeout = errors.New("dataset: poll timeout")

// RemoteError reports a malformed or unexpected upstream response. It is
// not retried.
type RemoteError struct {
	Op     string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("dataset %s: %s", e.Op, e.Reason)
}

type filter struct {
	ColumnName string `json:"columnName"`
	Type       string `json:"type"`
	Value      string `json:"value"`
}

// Client fetches dataset exports. Stateless per call; safe to reuse.
type Client struct {
	baseURL string
	http    *http.Client
	poll    retry.Policy
	log     *zap.Logger
}

// NewClient creates a dataset client. poll bounds the download-link polling
// loop; tests pass a zero-delay policy.
func NewClient(baseURL string, poll retry.Policy, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		poll:    poll,
		log:     log,
	}
}

// Fetch downloads the rows of a dataset narrowed to the given period by a
// server-side filter. Monthly filters also constrain the completion-year
// column so that year-keyed datasets (building attributes) narrow to the
// same period.
func (c *Client) Fetch(ctx context.Context, datasetID string, p period.Period) (*Table, error) {
	filters, err := buildFilters(p)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, datasetID, filters)
}

// FetchAll downloads a full dataset export with no filter. Used when
// materializing closed historical segments.
func (c *Client) FetchAll(ctx context.Context, datasetID string) (*Table, error) {
	return c.fetch(ctx, datasetID, []filter{})
}

func buildFilters(p period.Period) ([]filter, error) {
	switch p.Kind {
	case period.Month:
		if p.Month < 1 || p.Month > 12 {
			return nil, fmt.Errorf("%w: month %d", period.ErrInvalid, p.Month)
		}
		return []filter{
			{ColumnName: "month", Type: "EQ", Value: p.MonthLabel()},
			{ColumnName: "year_completed", Type: "EQ", Value: fmt.Sprintf("%d", p.Year)},
		}, nil
	case period.Quarter:
		if p.Quarter < 1 || p.Quarter > 4 {
			return nil, fmt.Errorf("%w: quarter %d", period.ErrInvalid, p.Quarter)
		}
		return []filter{
			{ColumnName: "quarter", Type: "EQ", Value: p.QuarterLabel()},
		}, nil
	case period.Year:
		return []filter{
			{ColumnName: "year_completed", Type: "EQ", Value: fmt.Sprintf("%d", p.Year)},
		}, nil
	}
	return nil, fmt.Errorf("%w: no usable month, quarter, or year", period.ErrInvalid)
}

func (c *Client) fetch(ctx context.Context, datasetID string, filters []filter) (*Table, error) {
	if err := c.initiate(ctx, datasetID, filters); err != nil {
		return nil, err
	}

	url, err := c.pollForURL(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	table, err := c.download(ctx, url)
	if err != nil {
		return nil, err
	}

	c.log.Info("dataset downloaded",
		zap.String("dataset", datasetID),
		zap.Int("rows", len(table.Rows)))
	return table, nil
}

func (c *Client) initiate(ctx context.Context, datasetID string, filters []filter) error {
	body, err := json.Marshal(map[string]any{"filters": filters})
	if err != nil {
		return fmt.Errorf("encoding filters: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+datasetID+"/initiate-download", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building initiate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("initiating download: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Data *struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &RemoteError{Op: "initiate", Reason: fmt.Sprintf("decoding response: %v", err)}
	}
	if result.Data == nil || result.Data.Message == "" {
		return &RemoteError{Op: "initiate", Reason: "response missing data.message"}
	}

	c.log.Info("export initiated",
		zap.String("dataset", datasetID),
		zap.String("message", result.Data.Message))
	return nil
}

// pollForURL polls the status endpoint at the policy's fixed interval until
// a download link appears or the attempt budget runs out.
func (c *Client) pollForURL(ctx context.Context, datasetID string) (string, error) {
	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		url, err := c.pollOnce(ctx, datasetID)
		if err != nil {
			return "", err
		}
		if url != "" {
			return url, nil
		}

		if attempt == c.poll.MaxAttempts {
			break
		}
		c.log.Info("no download link yet, continuing to poll",
			zap.String("dataset", datasetID),
			zap.Int("attempt", attempt),
			zap.Int("max_polls", c.poll.MaxAttempts))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.poll.Delay):
		}
	}

	return "", fmt.Errorf("%w: dataset %s after %d polls", ErrPollTimeout, datasetID, c.poll.MaxAttempts)
}

func (c *Client) pollOnce(ctx context.Context, datasetID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/"+datasetID+"/poll-download", nil)
	if err != nil {
		return "", fmt.Errorf("building poll request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("polling download: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Data *struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &RemoteError{Op: "poll", Reason: fmt.Sprintf("decoding response: %v", err)}
	}
	if result.Data == nil {
		return "", nil
	}
	return result.Data.URL, nil
}

func (c *Client) download(ctx context.Context, url string) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "download", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	table, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, &RemoteError{Op: "download", Reason: err.Error()}
	}
	return table, nil
}
