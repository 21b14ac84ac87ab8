// Package marketplace is a read-only client of the public plugin
// marketplace registry. Content is referenced by plugin unique identifier
// only; the registry never receives tenant data.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/plugrail/plugrail/pkg/pluginid"
)

type Conf struct {
	BaseURL string
	Timeout int `mapstructure:"timeout"` // seconds
}

// PluginVersion 市场上一个插件的最新版本信息
type PluginVersion struct {
	PluginID         string `json:"plugin_id"`
	LatestVersion    string `json:"latest_version"`
	UniqueIdentifier string `json:"unique_identifier"`
}

// Declaration 市场返回的插件声明
type Declaration struct {
	UniqueIdentifier string          `json:"unique_identifier"`
	Manifest         json.RawMessage `json:"manifest"`
}

type Client struct {
	rc *resty.Client
}

func NewClient(cfg Conf) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		rc: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout),
	}
}

// FetchDeclaration fetches the published declaration for one identifier.
func (c *Client) FetchDeclaration(ctx context.Context, uniqueIdentifier string) (*Declaration, error) {
	ident, err := pluginid.Parse(uniqueIdentifier)
	if err != nil {
		return nil, err
	}

	var decl Declaration
	resp, err := c.rc.R().SetContext(ctx).
		SetResult(&decl).
		Get(fmt.Sprintf("/api/v1/plugins/%s/%s/%s", ident.Vendor, ident.Name, ident.Version))
	if err != nil {
		return nil, fmt.Errorf("marketplace unreachable: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("plugin %s not found on marketplace", uniqueIdentifier)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("marketplace request failed: %s", resp.Status())
	}
	if decl.UniqueIdentifier == "" {
		decl.UniqueIdentifier = uniqueIdentifier
	}
	return &decl, nil
}

// ListLatestVersions returns the newest published version for each plugin id.
func (c *Client) ListLatestVersions(ctx context.Context, pluginIds []string) ([]PluginVersion, error) {
	var result struct {
		Versions []PluginVersion `json:"versions"`
	}
	resp, err := c.rc.R().SetContext(ctx).
		SetBody(map[string]any{"plugin_ids": pluginIds}).
		SetResult(&result).
		Post("/api/v1/plugins/versions/latest")
	if err != nil {
		return nil, fmt.Errorf("marketplace unreachable: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("marketplace request failed: %s", resp.Status())
	}
	return result.Versions, nil
}
