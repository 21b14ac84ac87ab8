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

// Package daemon is the gateway to the external plugin execution daemon.
// It is the only component that talks to the daemon over the network; all
// daemon failures are normalized into *Error before they leave this package.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/plugrail/plugrail/pkg/id"
)

type Conf struct {
	BaseURL       string
	ServerKey     string
	Timeout       int `mapstructure:"timeout"`       // control calls, seconds
	UploadTimeout int `mapstructure:"uploadTimeout"` // package uploads, seconds
}

// Gateway issues requests to the plugin daemon. Safe for concurrent use.
type Gateway interface {
	UploadPackage(ctx context.Context, tenantId string, pkg []byte, filename string) (*UploadResult, error)
	UploadFromGithub(ctx context.Context, tenantId, repo, version, asset string) (*UploadResult, error)
	UploadBundle(ctx context.Context, tenantId string, bundle []byte, filename string) ([]BundleDependency, error)
	FetchManifest(ctx context.Context, tenantId, uniqueIdentifier string) (*Manifest, error)
	InstallFromIdentifiers(ctx context.Context, tenantId string, uniqueIdentifiers []string, source string, metas []InstallMeta) (*InstallResponse, error)
	UpgradePlugin(ctx context.Context, tenantId, originalIdentifier, newIdentifier, source string, meta InstallMeta) (*InstallResponse, error)
	PollProgress(ctx context.Context, tenantId, taskHandle string) ([]ItemProgress, error)
	Uninstall(ctx context.Context, tenantId, installationId string) (bool, error)
	FetchAsset(ctx context.Context, tenantId, filename string) ([]byte, string, error)
	DebuggingKey(ctx context.Context, tenantId string) (string, error)
	ListPlugins(ctx context.Context, tenantId string, page, pageSize int) ([]Installation, int64, error)
	ListInstallationsFromIDs(ctx context.Context, tenantId string, pluginIds []string) ([]Installation, error)
}

type client struct {
	rc       *resty.Client
	uploadRC *resty.Client
}

// NewGateway 创建插件守护进程客户端
func NewGateway(cfg Conf) Gateway {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	uploadTimeout := time.Duration(cfg.UploadTimeout) * time.Second
	if uploadTimeout <= 0 {
		uploadTimeout = 2 * time.Minute
	}

	newRC := func(t time.Duration) *resty.Client {
		return resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(t).
			SetHeader("X-Api-Key", cfg.ServerKey).
			OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
				req.SetHeader("X-Request-Id", id.ShortId())
				return nil
			})
	}

	return &client{
		rc:       newRC(timeout),
		uploadRC: newRC(uploadTimeout),
	}
}

// call performs a request and decodes the daemon envelope into out.
func call(ctx context.Context, req *resty.Request, method, path string, out any) error {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return unavailable(err)
	}
	return decode(resp, out)
}

// decode unwraps the daemon response envelope.
func decode(resp *resty.Response, out any) error {
	if resp.StatusCode() == http.StatusNotFound {
		return newError(CodeNotFound, "not found")
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return newError(CodeInternal, fmt.Sprintf("malformed daemon response: %v", err))
	}
	if env.Code != 0 {
		return newError(env.Code, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeInternal, fmt.Sprintf("malformed daemon payload: %v", err))
	}
	return nil
}

func (c *client) UploadPackage(ctx context.Context, tenantId string, pkg []byte, filename string) (*UploadResult, error) {
	var result UploadResult
	req := c.uploadRC.R().
		SetFileReader("pkg", filename, bytesReader(pkg))
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/install/upload/package", tenantId), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) UploadFromGithub(ctx context.Context, tenantId, repo, version, asset string) (*UploadResult, error) {
	var result UploadResult
	req := c.uploadRC.R().SetBody(map[string]string{
		"repo":    repo,
		"version": version,
		"package": asset,
	})
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/install/upload/github", tenantId), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) UploadBundle(ctx context.Context, tenantId string, bundle []byte, filename string) ([]BundleDependency, error) {
	var deps []BundleDependency
	req := c.uploadRC.R().
		SetFileReader("bundle", filename, bytesReader(bundle))
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/install/upload/bundle", tenantId), &deps); err != nil {
		return nil, err
	}
	return deps, nil
}

func (c *client) FetchManifest(ctx context.Context, tenantId, uniqueIdentifier string) (*Manifest, error) {
	var manifest Manifest
	req := c.rc.R().SetQueryParam("plugin_unique_identifier", uniqueIdentifier)
	if err := call(ctx, req, resty.MethodGet,
		fmt.Sprintf("/plugin/%s/management/fetch/manifest", tenantId), &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (c *client) InstallFromIdentifiers(ctx context.Context, tenantId string, uniqueIdentifiers []string, source string, metas []InstallMeta) (*InstallResponse, error) {
	var result InstallResponse
	req := c.rc.R().SetBody(map[string]any{
		"plugin_unique_identifiers": uniqueIdentifiers,
		"source":                    source,
		"metas":                     metas,
	})
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/install/identifiers", tenantId), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) UpgradePlugin(ctx context.Context, tenantId, originalIdentifier, newIdentifier, source string, meta InstallMeta) (*InstallResponse, error) {
	var result InstallResponse
	req := c.rc.R().SetBody(map[string]any{
		"original_plugin_unique_identifier": originalIdentifier,
		"new_plugin_unique_identifier":      newIdentifier,
		"source":                            source,
		"meta":                              meta,
	})
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/install/upgrade", tenantId), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PollProgress returns the daemon's current snapshot for a task handle.
// An unknown handle yields an empty snapshot, not an error: the daemon may
// have expired the record after completion.
func (c *client) PollProgress(ctx context.Context, tenantId, taskHandle string) ([]ItemProgress, error) {
	var snapshot struct {
		Plugins []ItemProgress `json:"plugins"`
	}
	req := c.rc.R()
	err := call(ctx, req, resty.MethodGet,
		fmt.Sprintf("/plugin/%s/management/install/tasks/%s", tenantId, taskHandle), &snapshot)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return snapshot.Plugins, nil
}

func (c *client) Uninstall(ctx context.Context, tenantId, installationId string) (bool, error) {
	var result struct {
		Success bool `json:"success"`
	}
	req := c.rc.R().SetBody(map[string]string{
		"plugin_installation_id": installationId,
	})
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/uninstall", tenantId), &result); err != nil {
		return false, err
	}
	return result.Success, nil
}

// FetchAsset returns the raw asset bytes and mimetype. Assets are served
// without the response envelope.
func (c *client) FetchAsset(ctx context.Context, tenantId, filename string) ([]byte, string, error) {
	resp, err := c.rc.R().SetContext(ctx).
		Get(fmt.Sprintf("/plugin/%s/asset/%s", tenantId, filename))
	if err != nil {
		return nil, "", unavailable(err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, "", newError(CodeNotFound, fmt.Sprintf("asset %s not found", filename))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, "", newError(resp.StatusCode(), string(resp.Body()))
	}
	mimetype := resp.Header().Get("Content-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	return resp.Body(), mimetype, nil
}

func (c *client) DebuggingKey(ctx context.Context, tenantId string) (string, error) {
	var result struct {
		Key string `json:"key"`
	}
	req := c.rc.R()
	if err := call(ctx, req, resty.MethodGet,
		fmt.Sprintf("/plugin/%s/debugging/key", tenantId), &result); err != nil {
		return "", err
	}
	return result.Key, nil
}

func (c *client) ListPlugins(ctx context.Context, tenantId string, page, pageSize int) ([]Installation, int64, error) {
	var result struct {
		List  []Installation `json:"list"`
		Total int64          `json:"total"`
	}
	req := c.rc.R().
		SetQueryParam("page", fmt.Sprintf("%d", page)).
		SetQueryParam("page_size", fmt.Sprintf("%d", pageSize))
	if err := call(ctx, req, resty.MethodGet,
		fmt.Sprintf("/plugin/%s/management/list", tenantId), &result); err != nil {
		return nil, 0, err
	}
	return result.List, result.Total, nil
}

func (c *client) ListInstallationsFromIDs(ctx context.Context, tenantId string, pluginIds []string) ([]Installation, error) {
	var result struct {
		List []Installation `json:"list"`
	}
	req := c.rc.R().SetBody(map[string]any{
		"plugin_ids": pluginIds,
	})
	if err := call(ctx, req, resty.MethodPost,
		fmt.Sprintf("/plugin/%s/management/installations/ids", tenantId), &result); err != nil {
		return nil, err
	}
	return result.List, nil
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
