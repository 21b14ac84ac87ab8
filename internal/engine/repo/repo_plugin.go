package repo

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/pkg/ctx"
)

/**
 * @file: repo_plugin.go
 * @description: 租户已安装插件缓存视图仓库
 */

type PluginRepo struct {
	Ctx *ctx.Context
}

func NewPluginRepo(ctx *ctx.Context) *PluginRepo {
	return &PluginRepo{
		Ctx: ctx,
	}
}

// ListInstallations 分页列出租户已安装插件
func (r *PluginRepo) ListInstallations(tenantId string, page, pageSize int) ([]model.PluginInstallation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	query := r.Ctx.DB.Model(&model.PluginInstallation{}).Where("tenant_id = ?", tenantId)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var installations []model.PluginInstallation
	err := query.Order("installed_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&installations).Error
	return installations, total, err
}

// GetInstallation 按插件ID获取安装记录；不存在时返回nil而非错误
func (r *PluginRepo) GetInstallation(tenantId, pluginId string) (*model.PluginInstallation, error) {
	var installation model.PluginInstallation
	err := r.Ctx.DB.Where("tenant_id = ? AND plugin_id = ?", tenantId, pluginId).First(&installation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &installation, nil
}

// SaveInstallation 写入安装记录，同插件覆盖旧版本
func (r *PluginRepo) SaveInstallation(installation *model.PluginInstallation) error {
	return r.Ctx.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "plugin_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"unique_identifier", "version", "source", "checksum",
			"meta", "manifest", "installed_at", "updated_at",
		}),
	}).Create(installation).Error
}

// DeleteInstallation 删除安装记录，幂等
func (r *PluginRepo) DeleteInstallation(tenantId, pluginId string) error {
	return r.Ctx.DB.Where("tenant_id = ? AND plugin_id = ?", tenantId, pluginId).
		Delete(&model.PluginInstallation{}).Error
}
