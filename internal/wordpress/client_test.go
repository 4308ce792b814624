package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]interface{}
	auth   string
}

// newTestSite spins up a fake WordPress site that records requests and
// replies with the given status and body.
func newTestSite(t *testing.T, status int, responseBody string) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		user, pass, _ := r.BasicAuth()
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   body,
			auth:   user + ":" + pass,
		})
		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL, "admin", "app-pass-1234"), &requests
}

func TestClient_ListPagesRequestsEditContext(t *testing.T) {
	client, requests := newTestSite(t, http.StatusOK, `[{"id":12,"title":"Home"}]`)

	pages, err := client.ListPages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Home", pages[0]["title"])

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/wp-json/wp/v2/pages", req.path)
	assert.Contains(t, req.query, "context=edit")
	assert.Contains(t, req.query, "per_page=100")
	assert.Equal(t, "admin:app-pass-1234", req.auth)
}

func TestClient_UpdatePageFieldSendsSingleField(t *testing.T) {
	client, requests := newTestSite(t, http.StatusOK, `{"id":12}`)

	err := client.UpdatePageField(context.Background(), "12", "title", "Welcome")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/wp-json/wp/v2/pages/12", req.path)
	assert.Equal(t, map[string]interface{}{"title": "Welcome"}, req.body)
}

func TestClient_TogglePluginMapsStatus(t *testing.T) {
	client, requests := newTestSite(t, http.StatusOK, `{"plugin":"akismet","status":"active"}`)

	_, err := client.TogglePlugin(context.Background(), "akismet", true)
	require.NoError(t, err)
	_, err = client.TogglePlugin(context.Background(), "akismet", false)
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	assert.Equal(t, "active", (*requests)[0].body["status"])
	assert.Equal(t, "inactive", (*requests)[1].body["status"])
	assert.Equal(t, "/wp-json/wp/v2/plugins/akismet", (*requests)[0].path)
}

func TestClient_CreateMenuItemOmitsEmptyParent(t *testing.T) {
	client, requests := newTestSite(t, http.StatusCreated, `{"id":99}`)

	_, err := client.CreateMenuItem(context.Background(), "Blog", "/blog", "")
	require.NoError(t, err)
	_, err = client.CreateMenuItem(context.Background(), "News", "/news", "5")
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	_, hasParent := (*requests)[0].body["parent"]
	assert.False(t, hasParent)
	assert.Equal(t, "5", (*requests)[1].body["parent"])
	assert.Equal(t, "publish", (*requests)[0].body["status"])
}

func TestClient_OperationalEndpointsUseCompanionNamespace(t *testing.T) {
	client, requests := newTestSite(t, http.StatusOK, `{"ok":true}`)

	require.NoError(t, client.ClearCache(context.Background()))
	_, err := client.UpdateTheme(context.Background(), "twentytwentyfour")
	require.NoError(t, err)
	require.NoError(t, client.SetMaintenanceMode(context.Background(), true))

	require.Len(t, *requests, 3)
	assert.Equal(t, "/wp-json/agencydesk/v1/cache/clear", (*requests)[0].path)
	assert.Equal(t, "/wp-json/agencydesk/v1/themes/update", (*requests)[1].path)
	assert.Equal(t, "twentytwentyfour", (*requests)[1].body["theme"])
	assert.Equal(t, "/wp-json/agencydesk/v1/maintenance", (*requests)[2].path)
	assert.Equal(t, true, (*requests)[2].body["enabled"])
}

func TestClient_CreateUserGeneratesPassword(t *testing.T) {
	client, requests := newTestSite(t, http.StatusCreated, `{"id":7}`)

	_, err := client.CreateUser(context.Background(), "jo", "jo@example.com", "editor")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	body := (*requests)[0].body
	assert.Equal(t, "jo", body["username"])
	assert.Equal(t, []interface{}{"editor"}, body["roles"])
	pass, _ := body["password"].(string)
	assert.NotEmpty(t, pass)
}

func TestClient_NonSuccessBecomesAPIError(t *testing.T) {
	client, _ := newTestSite(t, http.StatusForbidden, `{"code":"rest_forbidden"}`)

	_, err := client.ListPlugins(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Endpoint, "/wp-json/wp/v2/plugins")
	assert.Contains(t, apiErr.Body, "rest_forbidden")
}

func TestClient_ErrorBodyTruncated(t *testing.T) {
	client, _ := newTestSite(t, http.StatusInternalServerError, strings.Repeat("e", 2048))

	err := client.ClearCache(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.LessOrEqual(t, len(apiErr.Body), 512+len("..."))
}

func TestClient_RepeatedOutagesTripBreaker(t *testing.T) {
	client, requests := newTestSite(t, http.StatusBadGateway, `upstream down`)

	for i := 0; i < 5; i++ {
		_, err := client.ListPages(context.Background())
		require.Error(t, err)
	}
	served := len(*requests)
	assert.Equal(t, 5, served)

	// Circuit now open: the call fails fast without reaching the site
	_, err := client.ListPages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, served, len(*requests))
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	client, requests := newTestSite(t, http.StatusNotFound, `{"code":"rest_post_invalid_id"}`)

	for i := 0; i < 10; i++ {
		_, err := client.GetPage(context.Background(), "999")
		require.Error(t, err)
	}
	// Every call reached the site; 4xx answers never open the circuit
	assert.Equal(t, 10, len(*requests))
}

func TestClient_NonJSONAckWrapped(t *testing.T) {
	client, _ := newTestSite(t, http.StatusOK, `OK`)

	result, err := client.UpdateCore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", result["raw"])
}
