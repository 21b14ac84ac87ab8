package repo

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/pkg/ctx"
)

/**
 * @file: repo_plugin_permission.go
 * @description: 租户插件权限策略仓库
 */

type PluginPermissionRepo struct {
	Ctx *ctx.Context
}

func NewPluginPermissionRepo(ctx *ctx.Context) *PluginPermissionRepo {
	return &PluginPermissionRepo{
		Ctx: ctx,
	}
}

// GetPermission 获取租户权限策略；未配置时返回nil而非错误
func (r *PluginPermissionRepo) GetPermission(tenantId string) (*model.PluginPermission, error) {
	var permission model.PluginPermission
	err := r.Ctx.DB.Where("tenant_id = ?", tenantId).First(&permission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &permission, nil
}

// SetPermission 写入租户权限策略，存在则覆盖
func (r *PluginPermissionRepo) SetPermission(permission *model.PluginPermission) error {
	return r.Ctx.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"install_permission", "debug_permission", "updated_at"}),
	}).Create(permission).Error
}
