package opentdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trivia-quiz-service/internal/domain"
)

// DefaultBaseURL is the public Open Trivia DB endpoint.
const DefaultBaseURL = "https://opentdb.com/api.php"

// Response codes documented by Open Trivia DB.
const (
	codeSuccess   = 0
	codeNoResults = 1
)

// Client fetches question batches from Open Trivia DB.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client; timeout bounds each request end to end.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type response struct {
	ResponseCode int                  `json:"response_code"`
	Results      []domain.RawQuestion `json:"results"`
}

// FetchQuestions requests amount questions. Transport, status and body
// failures wrap domain.ErrFetch; an empty batch is domain.ErrEmptyResult.
func (c *Client) FetchQuestions(ctx context.Context, amount int) ([]domain.RawQuestion, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", domain.ErrFetch, err)
	}
	q := u.Query()
	q.Set("amount", strconv.Itoa(amount))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrFetch, resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", domain.ErrFetch, err)
	}
	switch body.ResponseCode {
	case codeSuccess:
	case codeNoResults:
		return nil, domain.ErrEmptyResult
	default:
		return nil, fmt.Errorf("%w: response code %d", domain.ErrFetch, body.ResponseCode)
	}
	if len(body.Results) == 0 {
		return nil, domain.ErrEmptyResult
	}
	return body.Results, nil
}
