package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	userAgent       = "spigell/jobmatch"
	contentType     = "application/json"
	contentEncoding = "gzip"
	// perPage is the page size requested from the API.
	perPage = 100

	CandidatesPath   = "/candidates"
	JobsPath         = "/jobs"
	InteractionsPath = "/interactions"
)

// itemResponse is one page of a listing.
type itemResponse struct {
	Items   []any `json:"items"`
	Found   int   `json:"found"`
	Pages   int   `json:"pages"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

// Client reads a dataset from an HTTP API that pages its listings with
// page / per_page query parameters.
type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func NewClient(apiURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:  strings.TrimSpace(token),
		APIURL: strings.TrimRight(apiURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

// Load fetches candidates, jobs and interactions.
func (c *Client) Load(ctx context.Context) (*Dataset, error) {
	var ds Dataset
	for _, l := range []struct {
		path   string
		target any
	}{
		{CandidatesPath, &ds.Candidates},
		{JobsPath, &ds.Jobs},
		{InteractionsPath, &ds.Interactions},
	} {
		items, err := c.GetItems(ctx, l.path, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", l.path, err)
		}
		if err := decode(items, l.target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", l.path, err)
		}
	}

	c.logger.Info("dataset fetched",
		zap.String("api_url", c.APIURL),
		zap.Int("candidates", len(ds.Candidates)),
		zap.Int("jobs", len(ds.Jobs)),
		zap.Int("interactions", len(ds.Interactions)),
	)
	return &ds, nil
}

// GetItems requests the listing at path and returns the items from all pages.
func (c *Client) GetItems(ctx context.Context, path string, q url.Values) ([]any, error) {
	if q == nil {
		q = url.Values{}
	}
	if q.Get("per_page") == "" {
		q.Set("per_page", strconv.Itoa(perPage))
	}

	var items []any
	for page := 0; ; page++ {
		q.Set("page", strconv.Itoa(page))
		response, err := c.getPage(ctx, c.APIURL+path, q)
		if err != nil {
			return nil, err
		}
		items = append(items, response.Items...)

		if response.Page >= response.Pages-1 {
			break
		}
		c.logger.Debug("additional request needed", zap.String("reason", fmt.Sprintf(
			"current page (%d) < all page count (%d)", response.Page+1, response.Pages),
		))
	}
	return items, nil
}

func (c *Client) getPage(ctx context.Context, endpoint string, q url.Values) (*itemResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.URL.RawQuery = q.Encode()

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	var response itemResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &response, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)
}
