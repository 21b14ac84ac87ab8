package model

import (
	"time"

	"gorm.io/datatypes"
)

/**
 * @file: model_plugin.go
 * @description: cached plugin installation view
 */

// PluginInstallation 租户已安装插件（守护进程状态的本地缓存视图）
type PluginInstallation struct {
	BaseModel
	TenantId         string         `gorm:"column:tenant_id;index:idx_tenant_plugin,unique" json:"tenantId"`
	PluginId         string         `gorm:"column:plugin_id;index:idx_tenant_plugin,unique" json:"pluginId"` // vendor/name
	UniqueIdentifier string         `gorm:"column:unique_identifier" json:"uniqueIdentifier"`                // vendor/name:version@checksum
	Version          string         `gorm:"column:version" json:"version"`
	Source           string         `gorm:"column:source" json:"source"` // package/github/marketplace
	Checksum         string         `gorm:"column:checksum" json:"checksum"`
	Meta             datatypes.JSON `gorm:"column:meta;type:json" json:"meta"`         // 来源元数据（github仓库、市场ID等）
	Manifest         datatypes.JSON `gorm:"column:manifest;type:json" json:"manifest"` // 插件清单
	InstalledAt      time.Time      `gorm:"column:installed_at" json:"installedAt"`
}

func (PluginInstallation) TableName() string {
	return "t_plugin_installation"
}

// PluginSource 插件来源常量
const (
	PluginSourcePackage     = "package"
	PluginSourceGithub      = "github"
	PluginSourceMarketplace = "marketplace"
)
