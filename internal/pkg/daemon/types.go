package daemon

import "encoding/json"

/**
 * @file: types.go
 * @description: wire types of the plugin daemon management API
 */

// Manifest 插件清单
type Manifest struct {
	Vendor      string          `json:"author"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Label       map[string]string `json:"label,omitempty"`
	Description map[string]string `json:"description,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	Category    string          `json:"category,omitempty"`
	Resource    json.RawMessage `json:"resource,omitempty"`
	Verified    bool            `json:"verified,omitempty"`
}

// Installation is the daemon's durable record of an installed plugin.
type Installation struct {
	InstallationID   string          `json:"id"`
	PluginID         string          `json:"plugin_id"`
	UniqueIdentifier string          `json:"plugin_unique_identifier"`
	Source           string          `json:"source"`
	Status           string          `json:"status"`
	Meta             json.RawMessage `json:"meta,omitempty"`
	Declaration      json.RawMessage `json:"declaration,omitempty"`
	InstalledAt      string          `json:"created_at,omitempty"`
}

// UploadResult is returned by every upload-flavored call.
type UploadResult struct {
	UniqueIdentifier string   `json:"unique_identifier"`
	Manifest         Manifest `json:"manifest"`
}

// BundleDependency 离线包中的一个插件依赖
type BundleDependency struct {
	Type  string `json:"type"` // package / github / marketplace
	Value struct {
		UniqueIdentifier string   `json:"unique_identifier,omitempty"`
		Repo             string   `json:"repo,omitempty"`
		Version          string   `json:"version,omitempty"`
		Package          string   `json:"package,omitempty"`
		Manifest         Manifest `json:"manifest"`
	} `json:"value"`
}

// InstallResponse is the daemon's answer to a batch install request.
// TaskID correlates subsequent progress polls.
type InstallResponse struct {
	AllInstalled bool   `json:"all_installed"`
	TaskID       string `json:"task_id"`
}

// Item progress statuses reported by the daemon.
const (
	ProgressPending = "pending"
	ProgressRunning = "running"
	ProgressSuccess = "success"
	ProgressFailed  = "failed"
)

// ItemProgress is one plugin's progress inside a daemon-side task snapshot.
type ItemProgress struct {
	UniqueIdentifier string            `json:"plugin_unique_identifier"`
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	Icon             string            `json:"icon,omitempty"`
	Labels           map[string]string `json:"labels,omitempty"`
}

// InstallMeta rides along with an install request so the daemon can record
// where the package came from.
type InstallMeta struct {
	Repo          string `json:"repo,omitempty"`
	Version       string `json:"version,omitempty"`
	Package       string `json:"package,omitempty"`
	MarketplaceID string `json:"marketplace_plugin_unique_identifier,omitempty"`
}

// envelope is the daemon's uniform response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
