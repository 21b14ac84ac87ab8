package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Conf{BaseURL: srv.URL, Timeout: 2})
}

func TestFetchDeclaration(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/plugins/acme/demo/1.0.0", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Declaration{UniqueIdentifier: "acme/demo:1.0.0"})
	})

	decl, err := c.FetchDeclaration(context.Background(), "acme/demo:1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "acme/demo:1.0.0", decl.UniqueIdentifier)
}

func TestFetchDeclarationRejectsMalformedIdentifier(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("request should not reach the registry")
	})
	_, err := c.FetchDeclaration(context.Background(), "garbage")
	require.Error(t, err)
}

func TestFetchDeclarationNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.FetchDeclaration(context.Background(), "acme/demo:9.9.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListLatestVersions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PluginIds []string `json:"plugin_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"acme/demo"}, body.PluginIds)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"versions": []PluginVersion{{PluginID: "acme/demo", LatestVersion: "1.2.0"}},
		})
	})

	versions, err := c.ListLatestVersions(context.Background(), []string{"acme/demo"})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "1.2.0", versions[0].LatestVersion)
}
