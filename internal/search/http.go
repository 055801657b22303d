package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newgene/biohub/internal/config"
)

// HTTPClient is a thin REST implementation of Client. It talks plain
// JSON over HTTP to a single configured host.
type HTTPClient struct {
	base       string
	hc         *http.Client
	maxRetries int
}

func NewHTTPClient(args config.ClientArgs) (*HTTPClient, error) {
	if len(args.Hosts) == 0 {
		return nil, fmt.Errorf("search client: no hosts configured")
	}
	base := strings.TrimRight(args.Hosts[0], "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	timeout := args.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:       base,
		hc:         &http.Client{Timeout: timeout},
		maxRetries: args.MaxRetries,
	}, nil
}

// do runs one request, retrying transport-level failures. It returns the
// HTTP status and raw body; status interpretation is the caller's job.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if raw, ok := body.([]byte); ok {
			payload = raw
		} else if payload, err = json.Marshal(body); err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, fmt.Errorf("build request: %w", err)
		}
		if strings.HasSuffix(path, "/_bulk") {
			req.Header.Set("Content-Type", "application/x-ndjson")
		} else if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return resp.StatusCode, raw, nil
	}
	return 0, nil, fmt.Errorf("%s %s: %w", method, path, lastErr)
}

func statusErr(method, path string, status int, raw []byte) error {
	return fmt.Errorf("%s %s: status %d: %s", method, path, status, raw)
}

func (c *HTTPClient) IndexExists(ctx context.Context, index string) (bool, error) {
	status, raw, err := c.do(ctx, http.MethodHead, "/"+index, nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, statusErr("HEAD", "/"+index, status, raw)
}

func (c *HTTPClient) CreateIndex(ctx context.Context, index string, settings, mappings map[string]any) error {
	body := map[string]any{"settings": settings, "mappings": mappings}
	status, raw, err := c.do(ctx, http.MethodPut, "/"+index, nil, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusErr("PUT", "/"+index, status, raw)
	}
	return nil
}

func (c *HTTPClient) DeleteIndex(ctx context.Context, index string, ignoreUnavailable bool) error {
	status, raw, err := c.do(ctx, http.MethodDelete, "/"+index, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		if ignoreUnavailable {
			return nil
		}
		return ErrNotFound
	}
	if status != http.StatusOK {
		return statusErr("DELETE", "/"+index, status, raw)
	}
	return nil
}

func (c *HTTPClient) Aliases(ctx context.Context) (map[string][]string, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/_alias", nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusErr("GET", "/_alias", status, raw)
	}

	var parsed map[string]struct {
		Aliases map[string]any `json:"aliases"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}

	out := make(map[string][]string, len(parsed))
	for index, entry := range parsed {
		aliases := make([]string, 0, len(entry.Aliases))
		for alias := range entry.Aliases {
			aliases = append(aliases, alias)
		}
		out[index] = aliases
	}
	return out, nil
}

func (c *HTTPClient) RepositoryExists(ctx context.Context, repository string) (bool, error) {
	path := "/_snapshot/" + repository
	status, raw, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, statusErr("GET", path, status, raw)
}

func (c *HTTPClient) CreateRepository(ctx context.Context, repository, repoType string, settings map[string]any) error {
	path := "/_snapshot/" + repository
	body := map[string]any{"type": repoType, "settings": settings}
	status, raw, err := c.do(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusErr("PUT", path, status, raw)
	}
	return nil
}

func (c *HTTPClient) DeleteRepository(ctx context.Context, repository string) error {
	path := "/_snapshot/" + repository
	status, raw, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	if status != http.StatusOK {
		return statusErr("DELETE", path, status, raw)
	}
	return nil
}

func (c *HTTPClient) CreateSnapshot(ctx context.Context, repository, snapshot, index string) error {
	path := "/_snapshot/" + repository + "/" + snapshot
	body := map[string]any{"indices": index, "include_global_state": false}
	status, raw, err := c.do(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return statusErr("PUT", path, status, raw)
	}
	return nil
}

func (c *HTTPClient) GetSnapshotState(ctx context.Context, repository, snapshot string) (string, error) {
	path := "/_snapshot/" + repository + "/" + snapshot
	query := url.Values{"ignore_unavailable": {"true"}}
	status, raw, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", ErrNotFound
	}
	if status != http.StatusOK {
		return "", statusErr("GET", path, status, raw)
	}

	var parsed struct {
		Snapshots []struct {
			State string `json:"state"`
		} `json:"snapshots"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse snapshot status: %w", err)
	}
	if len(parsed.Snapshots) == 0 {
		return "", ErrNotFound
	}
	return parsed.Snapshots[0].State, nil
}

func (c *HTTPClient) DeleteSnapshot(ctx context.Context, repository, snapshot string) error {
	path := "/_snapshot/" + repository + "/" + snapshot
	status, raw, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	if status != http.StatusOK {
		return statusErr("DELETE", path, status, raw)
	}
	return nil
}

func (c *HTTPClient) MultiGet(ctx context.Context, index string, ids []string) (map[string]map[string]any, error) {
	path := "/" + index + "/_mget"
	status, raw, err := c.do(ctx, http.MethodPost, path, nil, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusErr("POST", path, status, raw)
	}

	var parsed struct {
		Docs []struct {
			ID     string         `json:"_id"`
			Found  bool           `json:"found"`
			Source map[string]any `json:"_source"`
		} `json:"docs"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse mget response: %w", err)
	}

	out := make(map[string]map[string]any)
	for _, doc := range parsed.Docs {
		if doc.Found {
			out[doc.ID] = doc.Source
		}
	}
	return out, nil
}

func (c *HTTPClient) Bulk(ctx context.Context, index string, docs []Document) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if err := enc.Encode(map[string]any{"index": map[string]any{"_id": doc.ID}}); err != nil {
			return 0, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(doc.Source); err != nil {
			return 0, fmt.Errorf("encode bulk source: %w", err)
		}
	}

	path := "/" + index + "/_bulk"
	status, raw, err := c.do(ctx, http.MethodPost, path, nil, buf.Bytes())
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, statusErr("POST", path, status, raw)
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  any `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("parse bulk response: %w", err)
	}

	written := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil {
				return written, fmt.Errorf("bulk item failed: status %d: %v", result.Status, result.Error)
			}
			written++
		}
	}
	return written, nil
}
