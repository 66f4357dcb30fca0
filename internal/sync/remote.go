package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studypact/backend/internal/models"
)

// Remote is the server surface the engine reconciles against. Fetches return
// only what the server allows the caller to see; the engine trusts that
// filtering completely.
type Remote interface {
	FetchProgress(ctx context.Context, from string) ([]models.ProgressRecord, error)
	FetchGated(ctx context.Context, from string) ([]models.GatedContent, error)
	FetchOpen(ctx context.Context, from string) ([]models.OpenContent, error)

	PushProgress(ctx context.Context, date string, hours []float64) (*models.ProgressRecord, error)
	PushGated(ctx context.Context, date, message string) (*models.GatedContent, error)
	PushOpen(ctx context.Context, date string, notes []string, diary string) (*models.OpenContent, error)
}

// ChangeEvent is a realtime notification that a row changed server-side
type ChangeEvent struct {
	Type     string `json:"type"`
	Table    string `json:"table"`
	CoupleID string `json:"couple_id"`
	AuthorID string `json:"author_id"`
	Date     string `json:"date"`
}

// Realtime delivers server push notifications. Subscribe blocks until the
// context is done, invoking onEvent for each change.
type Realtime interface {
	Subscribe(ctx context.Context, onEvent func(ChangeEvent)) error
}

// HTTPRemote talks to the backend's REST API
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRemote creates a Remote backed by the HTTP API
func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (r *HTTPRemote) FetchProgress(ctx context.Context, from string) ([]models.ProgressRecord, error) {
	var resp struct {
		Records []models.ProgressRecord `json:"records"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/progress?from="+from, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (r *HTTPRemote) FetchGated(ctx context.Context, from string) ([]models.GatedContent, error) {
	var resp struct {
		Contents []models.GatedContent `json:"contents"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/content/gated/history?from="+from, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Contents, nil
}

func (r *HTTPRemote) FetchOpen(ctx context.Context, from string) ([]models.OpenContent, error) {
	var resp struct {
		Contents []models.OpenContent `json:"contents"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/v1/content/open?from="+from, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Contents, nil
}

func (r *HTTPRemote) PushProgress(ctx context.Context, date string, hours []float64) (*models.ProgressRecord, error) {
	req := map[string]interface{}{"date": date, "hours": hours}
	var resp struct {
		Record *models.ProgressRecord `json:"record"`
	}
	if err := r.do(ctx, http.MethodPut, "/api/v1/progress", req, &resp); err != nil {
		return nil, err
	}
	return resp.Record, nil
}

func (r *HTTPRemote) PushGated(ctx context.Context, date, message string) (*models.GatedContent, error) {
	req := map[string]interface{}{"date": date, "message": message}
	var resp struct {
		Content *models.GatedContent `json:"content"`
	}
	if err := r.do(ctx, http.MethodPut, "/api/v1/content/gated", req, &resp); err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (r *HTTPRemote) PushOpen(ctx context.Context, date string, notes []string, diary string) (*models.OpenContent, error) {
	req := map[string]interface{}{"date": date, "subject_notes": notes, "diary_text": diary}
	var resp struct {
		Content *models.OpenContent `json:"content"`
	}
	if err := r.do(ctx, http.MethodPut, "/api/v1/content/open", req, &resp); err != nil {
		return nil, err
	}
	return resp.Content, nil
}
