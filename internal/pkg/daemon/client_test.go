// Copyright 2025 Plugrail Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(Conf{BaseURL: srv.URL, ServerKey: "test-key", Timeout: 2, UploadTimeout: 2})
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    json.RawMessage(raw),
	})
}

func TestFetchManifestUnwrapsEnvelope(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Equal(t, "/plugin/t1/management/fetch/manifest", r.URL.Path)
		assert.Equal(t, "acme/demo:1.0.0", r.URL.Query().Get("plugin_unique_identifier"))
		writeEnvelope(w, 0, "", Manifest{Vendor: "acme", Name: "demo", Version: "1.0.0"})
	})

	manifest, err := gw.FetchManifest(context.Background(), "t1", "acme/demo:1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "acme", manifest.Vendor)
	assert.Equal(t, "1.0.0", manifest.Version)
}

func TestEnvelopeErrorBecomesDaemonError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, CodePackageInvalid, "bad package", nil)
	})

	_, err := gw.FetchManifest(context.Background(), "t1", "acme/demo:1.0.0")
	require.Error(t, err)
	derr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodePackageInvalid, derr.Code)
	assert.Equal(t, "bad package", derr.Message)
}

func TestPollProgressUnknownTaskYieldsEmptySnapshot(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	snapshot, err := gw.PollProgress(context.Background(), "t1", "gone")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestPollProgressReturnsItems(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, 0, "", map[string]any{
			"plugins": []ItemProgress{
				{UniqueIdentifier: "acme/demo:1.0.0", Status: ProgressRunning},
				{UniqueIdentifier: "acme/other:2.0.0", Status: ProgressFailed, Message: "checksum mismatch"},
			},
		})
	})

	snapshot, err := gw.PollProgress(context.Background(), "t1", "task-1")
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, ProgressFailed, snapshot[1].Status)
	assert.Equal(t, "checksum mismatch", snapshot[1].Message)
}

func TestInstallFromIdentifiers(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PluginUniqueIdentifiers []string `json:"plugin_unique_identifiers"`
			Source                  string   `json:"source"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"acme/demo:1.0.0"}, body.PluginUniqueIdentifiers)
		assert.Equal(t, "marketplace", body.Source)
		writeEnvelope(w, 0, "", InstallResponse{AllInstalled: false, TaskID: "task-1"})
	})

	resp, err := gw.InstallFromIdentifiers(context.Background(), "t1",
		[]string{"acme/demo:1.0.0"}, "marketplace", []InstallMeta{{MarketplaceID: "acme/demo:1.0.0"}})
	require.NoError(t, err)
	assert.False(t, resp.AllInstalled)
	assert.Equal(t, "task-1", resp.TaskID)
}

func TestFetchAssetDefaultsMimetype(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plugin/t1/asset/icon.svg", r.URL.Path)
		w.Header()["Content-Type"] = nil // suppress Go's sniffing header
		_, _ = w.Write([]byte("<svg/>"))
	})

	data, mimetype, err := gw.FetchAsset(context.Background(), "t1", "icon.svg")
	require.NoError(t, err)
	assert.Equal(t, []byte("<svg/>"), data)
	assert.NotEmpty(t, mimetype)
}

func TestUnavailableDaemonIsNormalized(t *testing.T) {
	gw := NewGateway(Conf{BaseURL: "http://127.0.0.1:1", Timeout: 1})
	_, err := gw.DebuggingKey(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}
