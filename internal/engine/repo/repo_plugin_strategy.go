package repo

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/pkg/ctx"
)

/**
 * @file: repo_plugin_strategy.go
 * @description: 租户自动升级策略仓库
 */

type PluginStrategyRepo struct {
	Ctx *ctx.Context
}

func NewPluginStrategyRepo(ctx *ctx.Context) *PluginStrategyRepo {
	return &PluginStrategyRepo{
		Ctx: ctx,
	}
}

// GetStrategy 获取租户自动升级策略；未配置时返回nil而非错误
func (r *PluginStrategyRepo) GetStrategy(tenantId string) (*model.PluginAutoUpgradeStrategy, error) {
	var strategy model.PluginAutoUpgradeStrategy
	err := r.Ctx.DB.Where("tenant_id = ?", tenantId).First(&strategy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &strategy, nil
}

// SetStrategy 写入租户自动升级策略，存在则覆盖
func (r *PluginStrategyRepo) SetStrategy(strategy *model.PluginAutoUpgradeStrategy) error {
	return r.Ctx.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"strategy_setting", "upgrade_time_of_day", "upgrade_mode",
			"excluded_plugins", "included_plugins", "updated_at",
		}),
	}).Create(strategy).Error
}
