package service

import (
	"encoding/json"
	"errors"

	"gorm.io/datatypes"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/pkg/ctx"
	"github.com/plugrail/plugrail/pkg/log"
	"github.com/plugrail/plugrail/pkg/pluginid"
)

/**
 * @file: service_plugin_auto_upgrade.go
 * @description: 租户自动升级策略
 */

// ErrInvalidStrategy 非法策略取值
var ErrInvalidStrategy = errors.New("invalid auto-upgrade strategy value")

// strategyStore 策略存储，由 repo.PluginStrategyRepo 实现
type strategyStore interface {
	GetStrategy(tenantId string) (*model.PluginAutoUpgradeStrategy, error)
	SetStrategy(strategy *model.PluginAutoUpgradeStrategy) error
}

// PluginAutoUpgradeService 自动升级策略服务
type PluginAutoUpgradeService struct {
	ctx          *ctx.Context
	strategyRepo strategyStore
}

func NewPluginAutoUpgradeService(c *ctx.Context) *PluginAutoUpgradeService {
	return &PluginAutoUpgradeService{
		ctx:          c,
		strategyRepo: repo.NewPluginStrategyRepo(c),
	}
}

// GetStrategy 查询租户策略，未配置时给默认值
func (s *PluginAutoUpgradeService) GetStrategy(tenantId string) (*model.PluginAutoUpgradeStrategy, error) {
	strategy, err := s.strategyRepo.GetStrategy(tenantId)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		strategy = &model.PluginAutoUpgradeStrategy{
			TenantId:        tenantId,
			StrategySetting: model.UpgradeStrategyDisabled,
			UpgradeMode:     model.UpgradeModeExclude,
		}
	}
	return strategy, nil
}

// StrategyDetail 对外暴露的策略视图，字段名即接口契约
type StrategyDetail struct {
	StrategySetting  string   `json:"strategy_setting"`
	UpgradeTimeOfDay int      `json:"upgrade_time_of_day"`
	UpgradeMode      string   `json:"upgrade_mode"`
	ExcludePlugins   []string `json:"exclude_plugins"`
	IncludePlugins   []string `json:"include_plugins"`
}

// GetStrategyDetail 查询租户策略的对外视图，列表保证非null
func (s *PluginAutoUpgradeService) GetStrategyDetail(tenantId string) (*StrategyDetail, error) {
	strategy, err := s.GetStrategy(tenantId)
	if err != nil {
		return nil, err
	}
	excluded := jsonList(strategy.ExcludedPlugins)
	if excluded == nil {
		excluded = []string{}
	}
	included := jsonList(strategy.IncludedPlugins)
	if included == nil {
		included = []string{}
	}
	return &StrategyDetail{
		StrategySetting:  strategy.StrategySetting,
		UpgradeTimeOfDay: strategy.UpgradeTimeOfDay,
		UpgradeMode:      strategy.UpgradeMode,
		ExcludePlugins:   excluded,
		IncludePlugins:   included,
	}, nil
}

// ChangeStrategy 覆盖租户自动升级策略
func (s *PluginAutoUpgradeService) ChangeStrategy(tenantId, setting string, timeOfDay int, mode string, excluded, included []string) error {
	if !model.ValidStrategySetting(setting) || !model.ValidUpgradeMode(mode) {
		return ErrInvalidStrategy
	}
	if timeOfDay < 0 || timeOfDay >= 24*60 {
		return ErrInvalidStrategy
	}
	strategy := &model.PluginAutoUpgradeStrategy{
		TenantId:         tenantId,
		StrategySetting:  setting,
		UpgradeTimeOfDay: timeOfDay,
		UpgradeMode:      mode,
		ExcludedPlugins:  mustJSONList(excluded),
		IncludedPlugins:  mustJSONList(included),
	}
	if err := s.strategyRepo.SetStrategy(strategy); err != nil {
		return err
	}
	log.Infow("[PluginAutoUpgradeService] strategy changed",
		"tenantId", tenantId, "setting", setting, "mode", mode)
	return nil
}

// ExcludePlugin 把单个插件从自动升级中排除，幂等。
// include模式下切换为exclude模式并以该插件作为排除集初值。
func (s *PluginAutoUpgradeService) ExcludePlugin(tenantId, pluginId string) error {
	strategy, err := s.GetStrategy(tenantId)
	if err != nil {
		return err
	}

	if strategy.UpgradeMode == model.UpgradeModeInclude {
		strategy.UpgradeMode = model.UpgradeModeExclude
		strategy.ExcludedPlugins = mustJSONList([]string{pluginId})
		return s.strategyRepo.SetStrategy(strategy)
	}

	excluded := jsonList(strategy.ExcludedPlugins)
	for _, p := range excluded {
		if p == pluginId {
			return nil // already excluded
		}
	}
	strategy.ExcludedPlugins = mustJSONList(append(excluded, pluginId))
	return s.strategyRepo.SetStrategy(strategy)
}

// ShouldAutoUpgrade 纯判定：按策略决定某插件能否从current自动升到candidate
func ShouldAutoUpgrade(strategy *model.PluginAutoUpgradeStrategy, pluginId, currentVersion, candidateVersion string) bool {
	if strategy == nil || strategy.StrategySetting == model.UpgradeStrategyDisabled {
		return false
	}
	if pluginid.Compare(candidateVersion, currentVersion) <= 0 {
		return false
	}

	switch strategy.UpgradeMode {
	case model.UpgradeModeInclude:
		if !containsPlugin(strategy.IncludedPlugins, pluginId) {
			return false
		}
	default: // all / exclude
		if containsPlugin(strategy.ExcludedPlugins, pluginId) {
			return false
		}
	}

	if strategy.StrategySetting == model.UpgradeStrategyFixOnly {
		return pluginid.IsPatchUpgrade(currentVersion, candidateVersion)
	}
	return true
}

func containsPlugin(list datatypes.JSON, pluginId string) bool {
	for _, p := range jsonList(list) {
		if p == pluginId {
			return true
		}
	}
	return false
}

func jsonList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		log.Warnf("malformed plugin list in strategy: %v", err)
		return nil
	}
	return list
}

func mustJSONList(list []string) datatypes.JSON {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return datatypes.JSON(b)
}
