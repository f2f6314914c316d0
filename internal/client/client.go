// Package client talks to a running taarya server. When the agent
// endpoint cannot be reached or fails, the query is parsed locally for
// coordinates or a source identifier and dispatched directly to the
// catalog endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/taarya/taarya/internal/agent"
	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/tools"
)

// Fallback cone-search defaults when only coordinates are parsed from
// the query.
const (
	FallbackRadiusDeg = 0.5
	FallbackLimit     = 10
)

// ErrTransport indicates the agent endpoint could not produce an answer;
// the query went through the local fallback instead.
var ErrTransport = errors.New("agent endpoint unreachable")

// Fallback query patterns.
var (
	raPattern       = regexp.MustCompile(`(?i)\bra\s*[=:]\s*([0-9]+(?:\.[0-9]+)?)`)
	decPattern      = regexp.MustCompile(`(?i)\bdec\s*[=:]\s*([+-]?[0-9]+(?:\.[0-9]+)?)`)
	sourceIDPattern = regexp.MustCompile(`\b\d{5,}\b`)
)

// Answer is what the client returns from Ask, from either the agent or
// the catalog fallback.
type Answer struct {
	Answer      string             `json:"answer"`
	ToolsUsed   []tools.Invocation `json:"tools_used,omitempty"`
	ToolOutputs []tools.Output     `json:"tool_outputs,omitempty"`

	// Set when the catalog fallback served the query.
	Fallback bool            `json:"fallback,omitempty"`
	Stars    []catalog.Entry `json:"stars,omitempty"`
	Count    int64           `json:"count,omitempty"`
}

// Client calls the taarya HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("client: base URL is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}, nil
}

type askBody struct {
	Query   string        `json:"query"`
	History []historyItem `json:"chat_history,omitempty"`
}

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Ask sends the query to the agent endpoint. On failure it falls back to
// direct catalog queries parsed from the query text.
func (c *Client) Ask(ctx context.Context, query string, history []agent.Message) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("client: empty query")
	}

	answer, err := c.askAgent(ctx, query, history)
	if err == nil {
		return answer, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return c.fallback(ctx, query)
}

func (c *Client) askAgent(ctx context.Context, query string, history []agent.Message) (*Answer, error) {
	body := askBody{Query: query}
	for _, m := range history {
		body.History = append(body.History, historyItem{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/agent/ask", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: agent returned %d", ErrTransport, resp.StatusCode)
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("%w: decoding answer: %v", ErrTransport, err)
	}
	return &answer, nil
}

// fallback parses the query locally and queries the catalog endpoints
// directly. Coordinates win over a bare source id.
func (c *Client) fallback(ctx context.Context, query string) (*Answer, error) {
	raMatch := raPattern.FindStringSubmatch(query)
	decMatch := decPattern.FindStringSubmatch(query)

	if raMatch != nil && decMatch != nil {
		ra, errRA := strconv.ParseFloat(raMatch[1], 64)
		dec, errDec := strconv.ParseFloat(decMatch[1], 64)
		if errRA == nil && errDec == nil {
			return c.fallbackCone(ctx, ra, dec)
		}
	}

	if m := sourceIDPattern.FindString(query); m != "" {
		if sourceID, err := strconv.ParseInt(m, 10, 64); err == nil {
			return c.fallbackLookup(ctx, sourceID)
		}
	}

	return &Answer{
		Answer: "The agent is unreachable and the query could not be parsed locally. " +
			"Try coordinates like \"RA=45, Dec=0.5\" or a numeric source identifier.",
		Fallback: true,
	}, nil
}

func (c *Client) fallbackCone(ctx context.Context, ra, dec float64) (*Answer, error) {
	q := url.Values{}
	q.Set("ra", strconv.FormatFloat(ra, 'f', -1, 64))
	q.Set("dec", strconv.FormatFloat(dec, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(FallbackRadiusDeg, 'f', -1, 64))
	q.Set("limit", strconv.Itoa(FallbackLimit))

	var result struct {
		Stars []catalog.Entry `json:"stars"`
		Count int64           `json:"count"`
	}
	if err := c.getJSON(ctx, "/api/stars/cone-search?"+q.Encode(), &result); err != nil {
		return nil, err
	}

	return &Answer{
		Answer: fmt.Sprintf("Found %d stars within %g degrees of RA %g, Dec %g.",
			result.Count, FallbackRadiusDeg, ra, dec),
		Fallback: true,
		Stars:    result.Stars,
		Count:    result.Count,
	}, nil
}

func (c *Client) fallbackLookup(ctx context.Context, sourceID int64) (*Answer, error) {
	var entry catalog.Entry
	path := fmt.Sprintf("/api/stars/lookup/%d", sourceID)
	if err := c.getJSON(ctx, path, &entry); err != nil {
		return nil, err
	}

	return &Answer{
		Answer:   fmt.Sprintf("Star %d is at RA %g, Dec %g.", entry.SourceID, entry.RA, entry.Dec),
		Fallback: true,
		Stars:    []catalog.Entry{entry},
		Count:    1,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// ExportJSON renders the answer as indented JSON.
func ExportJSON(answer *Answer) ([]byte, error) {
	if answer == nil {
		return nil, errors.New("client: answer is nil")
	}
	return json.MarshalIndent(answer, "", "  ")
}
