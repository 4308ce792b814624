// Package wordpress is the remote-site capability provider. It speaks the
// WordPress REST API using application-password auth, plus the companion
// plugin's namespace for operational endpoints (cache, core updates,
// maintenance mode) the core API does not expose.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agencydesk/backend/internal/circuitbreaker"
)

// Client talks to a single managed WordPress site.
type Client struct {
	baseURL    string
	username   string
	appPass    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// NewClient creates a client for one site. baseURL is the site root
// (e.g. https://example.com), credentials are an application password pair.
func NewClient(baseURL, username, appPass string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		appPass:  appPass,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// APIError is the typed error raised for any non-2xx response from the site.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wordpress %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// ============================================================================
// READ OPERATIONS
// ============================================================================

func (c *Client) ListPages(ctx context.Context) ([]map[string]interface{}, error) {
	return c.getList(ctx, "/wp-json/wp/v2/pages?per_page=100&context=edit")
}

func (c *Client) GetPage(ctx context.Context, id string) (map[string]interface{}, error) {
	return c.getOne(ctx, "/wp-json/wp/v2/pages/"+url.PathEscape(id)+"?context=edit")
}

func (c *Client) ListPosts(ctx context.Context) ([]map[string]interface{}, error) {
	return c.getList(ctx, "/wp-json/wp/v2/posts?per_page=100&context=edit")
}

func (c *Client) GetPost(ctx context.Context, id string) (map[string]interface{}, error) {
	return c.getOne(ctx, "/wp-json/wp/v2/posts/"+url.PathEscape(id)+"?context=edit")
}

func (c *Client) ListMedia(ctx context.Context) ([]map[string]interface{}, error) {
	return c.getList(ctx, "/wp-json/wp/v2/media?per_page=100&context=edit")
}

func (c *Client) GetMediaItem(ctx context.Context, id string) (map[string]interface{}, error) {
	return c.getOne(ctx, "/wp-json/wp/v2/media/"+url.PathEscape(id)+"?context=edit")
}

func (c *Client) ListPlugins(ctx context.Context) ([]map[string]interface{}, error) {
	return c.getList(ctx, "/wp-json/wp/v2/plugins")
}

func (c *Client) ListUsers(ctx context.Context) ([]map[string]interface{}, error) {
	return c.getList(ctx, "/wp-json/wp/v2/users?per_page=100&context=edit")
}

func (c *Client) ListMenuItems(ctx context.Context) ([]map[string]interface{}, error) {
	return c.getList(ctx, "/wp-json/wp/v2/menu-items?per_page=100&context=edit")
}

// ============================================================================
// FIELD-LEVEL WRITE OPERATIONS (invoked from Apply/Rollback, never from the
// agent loop)
// ============================================================================

func (c *Client) UpdatePageField(ctx context.Context, id, field, value string) error {
	_, err := c.send(ctx, http.MethodPost, "/wp-json/wp/v2/pages/"+url.PathEscape(id),
		map[string]interface{}{field: value})
	return err
}

func (c *Client) UpdatePostField(ctx context.Context, id, field, value string) error {
	_, err := c.send(ctx, http.MethodPost, "/wp-json/wp/v2/posts/"+url.PathEscape(id),
		map[string]interface{}{field: value})
	return err
}

func (c *Client) UpdateMediaField(ctx context.Context, id, field, value string) error {
	_, err := c.send(ctx, http.MethodPost, "/wp-json/wp/v2/media/"+url.PathEscape(id),
		map[string]interface{}{field: value})
	return err
}

func (c *Client) UpdateMenuItemField(ctx context.Context, id, field, value string) error {
	_, err := c.send(ctx, http.MethodPost, "/wp-json/wp/v2/menu-items/"+url.PathEscape(id),
		map[string]interface{}{field: value})
	return err
}

func (c *Client) CreateMenuItem(ctx context.Context, title, menuURL, parentID string) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"title":  title,
		"url":    menuURL,
		"status": "publish",
	}
	if parentID != "" {
		body["parent"] = parentID
	}
	return c.send(ctx, http.MethodPost, "/wp-json/wp/v2/menu-items", body)
}

func (c *Client) TogglePlugin(ctx context.Context, plugin string, active bool) (map[string]interface{}, error) {
	status := "inactive"
	if active {
		status = "active"
	}
	return c.send(ctx, http.MethodPost, "/wp-json/wp/v2/plugins/"+url.PathEscape(plugin),
		map[string]interface{}{"status": status})
}

// ============================================================================
// OPERATIONAL WRITE OPERATIONS (companion plugin namespace)
// ============================================================================

func (c *Client) ClearCache(ctx context.Context) error {
	_, err := c.send(ctx, http.MethodPost, "/wp-json/agencydesk/v1/cache/clear", nil)
	return err
}

func (c *Client) UpdateCore(ctx context.Context) (map[string]interface{}, error) {
	return c.send(ctx, http.MethodPost, "/wp-json/agencydesk/v1/core/update", nil)
}

func (c *Client) UpdatePlugin(ctx context.Context, plugin string) (map[string]interface{}, error) {
	return c.send(ctx, http.MethodPost, "/wp-json/agencydesk/v1/plugins/update",
		map[string]interface{}{"plugin": plugin})
}

func (c *Client) UpdateTheme(ctx context.Context, theme string) (map[string]interface{}, error) {
	return c.send(ctx, http.MethodPost, "/wp-json/agencydesk/v1/themes/update",
		map[string]interface{}{"theme": theme})
}

func (c *Client) CreateUser(ctx context.Context, username, email, role string) (map[string]interface{}, error) {
	return c.send(ctx, http.MethodPost, "/wp-json/wp/v2/users", map[string]interface{}{
		"username": username,
		"email":    email,
		"roles":    []string{role},
		"password": generatedPassword(),
	})
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete,
		"/wp-json/wp/v2/users/"+url.PathEscape(id)+"?force=true&reassign=1", nil)
	return err
}

func (c *Client) SetMaintenanceMode(ctx context.Context, enabled bool) error {
	_, err := c.send(ctx, http.MethodPost, "/wp-json/agencydesk/v1/maintenance",
		map[string]interface{}{"enabled": enabled})
	return err
}

// ============================================================================
// HTTP PLUMBING
// ============================================================================

func (c *Client) getList(ctx context.Context, path string) ([]map[string]interface{}, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func (c *Client) getOne(ctx context.Context, path string) (map[string]interface{}, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, path string, body map[string]interface{}) (map[string]interface{}, error) {
	data, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			// Some companion endpoints return bare acknowledgements
			return map[string]interface{}{"raw": string(data)}, nil
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body map[string]interface{}) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("site %s: %w", c.baseURL, err)
	}

	data, err := c.doOnce(ctx, method, path, body)
	// Only outages count against the breaker. A 4xx is the site answering
	// normally; it must not trip the circuit.
	var apiErr *APIError
	outage := err != nil && (!errors.As(err, &apiErr) || apiErr.StatusCode >= 500)
	c.breaker.Record(!outage)
	return data, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body map[string]interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.appPass)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wordpress request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			Body:       truncate(string(data), 512),
		}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
