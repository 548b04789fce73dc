// Package inat implements domain.RemoteSource against the public
// iNaturalist v1 REST API.
package inat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/acormier/vireo/internal/domain"
)

const (
	defaultBaseURL = "https://api.inaturalist.org/v1"
	defaultTimeout = 30 * time.Second
	userAgent      = "Vireo/1.0"

	// The API rejects by-ID requests with more than 30 IDs
	maxIDsPerRequest = 30
)

// Client implements domain.RemoteSource for iNaturalist
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new iNaturalist API client. An empty baseURL
// selects the public API.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		// Published limits: short bursts of 5, 400 requests/min sustained
		limiter: rate.NewLimiter(rate.Every(time.Minute/400), 5),
		logger:  logger,
	}
}

// doRequest performs a rate-limited GET and returns the response body
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s%s", c.baseURL, path)
	if len(query) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("inat request", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("inat request failed", "error", err)
		return nil, domain.ErrSourceUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("inat request error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return body, nil
}

// TaxaByIDs fetches taxon records by ID, batching requests to respect
// the per-call ID cap. Unknown IDs are simply absent from the result.
func (c *Client) TaxaByIDs(ctx context.Context, ids []int64) ([]*domain.Taxon, error) {
	var taxa []*domain.Taxon

	for _, batch := range batchIDs(ids, maxIDsPerRequest) {
		body, err := c.doRequest(ctx, "/taxa/"+joinIDs(batch), nil)
		if err != nil {
			return nil, err
		}

		var resp TaxaResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse taxa response: %w", err)
		}

		taxa = append(taxa, MapTaxa(resp.Results)...)
	}

	return taxa, nil
}

// ObservationsByIDs fetches observation records by ID in batched calls
func (c *Client) ObservationsByIDs(ctx context.Context, ids []int64) ([]*domain.Observation, error) {
	var obs []*domain.Observation

	for _, batch := range batchIDs(ids, maxIDsPerRequest) {
		body, err := c.doRequest(ctx, "/observations/"+joinIDs(batch), nil)
		if err != nil {
			return nil, err
		}

		var resp ObservationsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse observations response: %w", err)
		}

		obs = append(obs, MapObservations(resp.Results)...)
	}

	return obs, nil
}

// CountObservations probes the total result count for a query without
// fetching any rows (per_page=0 returns the envelope only).
func (c *Client) CountObservations(ctx context.Context, q domain.ObservationQuery) (int, error) {
	query := observationQuery(q)
	query.Set("per_page", "0")

	body, err := c.doRequest(ctx, "/observations", query)
	if err != nil {
		return 0, err
	}

	var resp ObservationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse observations response: %w", err)
	}

	return resp.TotalResults, nil
}

// ObservationsPage fetches one page of a listing ordered by ID
// ascending, so id_above resumption never skips records.
func (c *Client) ObservationsPage(ctx context.Context, q domain.ObservationQuery) ([]*domain.Observation, int, error) {
	query := observationQuery(q)
	query.Set("order_by", "id")
	query.Set("order", "asc")

	body, err := c.doRequest(ctx, "/observations", query)
	if err != nil {
		return nil, 0, err
	}

	var resp ObservationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to parse observations response: %w", err)
	}

	return MapObservations(resp.Results), resp.TotalResults, nil
}

// SearchTaxa runs the remote name autocomplete
func (c *Client) SearchTaxa(ctx context.Context, q string, limit int) ([]*domain.Taxon, error) {
	if q == "" || limit <= 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("q", q)
	query.Set("per_page", strconv.Itoa(limit))

	body, err := c.doRequest(ctx, "/taxa/autocomplete", query)
	if err != nil {
		return nil, err
	}

	var resp TaxaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse taxa response: %w", err)
	}

	return MapTaxa(resp.Results), nil
}

// observationQuery converts the domain query to request parameters
func observationQuery(q domain.ObservationQuery) url.Values {
	query := url.Values{}
	if q.Username != "" {
		query.Set("user_login", q.Username)
	}
	if q.UpdatedSince != nil {
		query.Set("updated_since", q.UpdatedSince.UTC().Format(time.RFC3339))
	}
	if q.IDAbove > 0 {
		query.Set("id_above", strconv.FormatInt(q.IDAbove, 10))
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return query
}

// batchIDs splits an ID list into chunks of at most size
func batchIDs(ids []int64, size int) [][]int64 {
	var batches [][]int64
	for len(ids) > size {
		batches = append(batches, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}

// joinIDs renders IDs as the comma-separated path segment the by-ID
// endpoints expect.
func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
