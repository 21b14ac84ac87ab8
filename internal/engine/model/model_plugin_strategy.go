package model

import (
	"gorm.io/datatypes"
)

/**
 * @file: model_plugin_strategy.go
 * @description: tenant auto-upgrade strategy
 */

// 自动升级策略模式
const (
	UpgradeStrategyDisabled = "disabled"
	UpgradeStrategyFixOnly  = "fix_only" // 仅补丁版本
	UpgradeStrategyAll      = "all"
)

// 升级策略适用范围
const (
	UpgradeModeAll     = "all"     // 全部插件，排除 ExcludedPlugins
	UpgradeModeInclude = "include" // 仅 IncludedPlugins
	UpgradeModeExclude = "exclude" // 同 all，显式排除
)

// PluginAutoUpgradeStrategy 租户自动升级策略，每租户至多一行
type PluginAutoUpgradeStrategy struct {
	BaseModel
	TenantId         string         `gorm:"column:tenant_id;uniqueIndex" json:"tenantId"`
	StrategySetting  string         `gorm:"column:strategy_setting;default:disabled" json:"strategySetting"` // disabled/fix_only/all
	UpgradeTimeOfDay int            `gorm:"column:upgrade_time_of_day" json:"upgradeTimeOfDay"`              // 当日分钟数 0-1439
	UpgradeMode      string         `gorm:"column:upgrade_mode;default:exclude" json:"upgradeMode"`          // all/include/exclude
	ExcludedPlugins  datatypes.JSON `gorm:"column:excluded_plugins;type:json" json:"excludedPlugins"`        // plugin_id 列表
	IncludedPlugins  datatypes.JSON `gorm:"column:included_plugins;type:json" json:"includedPlugins"`        // plugin_id 列表
}

func (PluginAutoUpgradeStrategy) TableName() string {
	return "t_plugin_auto_upgrade_strategy"
}

// ValidStrategySetting 校验策略档位取值
func ValidStrategySetting(v string) bool {
	switch v {
	case UpgradeStrategyDisabled, UpgradeStrategyFixOnly, UpgradeStrategyAll:
		return true
	}
	return false
}

// ValidUpgradeMode 校验适用范围取值
func ValidUpgradeMode(v string) bool {
	switch v {
	case UpgradeModeAll, UpgradeModeInclude, UpgradeModeExclude:
		return true
	}
	return false
}
