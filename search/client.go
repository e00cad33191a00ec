package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"teachprep-server-go/logger"
	"teachprep-server-go/models"
)

// Payload is the request body both retrieval endpoints accept.
// count/grades are always sent as strings, matching the service contract.
type Payload struct {
	SemanticQuery     string `json:"semantic_query"`
	CountQuery        string `json:"count_query"`
	GradesQuery       string `json:"grades_query"`
	TrainedWeaknesses string `json:"trained_weaknesses,omitempty"`
	TopK              int    `json:"top_k"`
}

// Client talks to the external exercise-retrieval service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 8 * time.Second},
		log:        log.With("service", "SearchClient"),
	}
}

// HybridSearch queries the lesson-plan (课课练) retrieval endpoint.
func (c *Client) HybridSearch(ctx context.Context, payload Payload) ([]models.SearchResult, error) {
	return c.postJSON(ctx, "/extended-search/hybrid", payload)
}

// SportsMeetingSearch queries the sports-meeting retrieval endpoint.
func (c *Client) SportsMeetingSearch(ctx context.Context, payload Payload) ([]models.SearchResult, error) {
	return c.postJSON(ctx, "/search/hybrid", payload)
}

func (c *Client) postJSON(ctx context.Context, path string, payload Payload) ([]models.SearchResult, error) {
	if payload.TopK <= 0 {
		payload.TopK = 5
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("search request failed", "path", path, "status", resp.StatusCode, "body", string(raw))
		return nil, fmt.Errorf("search service %s returned status %d", path, resp.StatusCode)
	}

	// The service answers either {"results": [...]} or a bare array.
	var wrapped struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Results != nil {
		return wrapped.Results, nil
	}
	var list []models.SearchResult
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	return []models.SearchResult{}, nil
}
