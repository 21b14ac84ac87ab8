package service

import (
	"context"
	"errors"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/pkg/ctx"
	"github.com/plugrail/plugrail/pkg/log"
)

/**
 * @file: service_plugin_permission.go
 * @description: 租户插件权限策略
 */

// ErrInvalidPermission 非法权限档位
var ErrInvalidPermission = errors.New("invalid permission value")

// PluginPermissionService 插件权限策略服务。实现
// middleware.PluginPermissionChecker。
type PluginPermissionService struct {
	ctx            *ctx.Context
	permissionRepo *repo.PluginPermissionRepo
}

func NewPluginPermissionService(c *ctx.Context) *PluginPermissionService {
	return &PluginPermissionService{
		ctx:            c,
		permissionRepo: repo.NewPluginPermissionRepo(c),
	}
}

// GetPermission 查询租户权限策略，未配置时给默认值
func (s *PluginPermissionService) GetPermission(tenantId string) (*model.PluginPermission, error) {
	permission, err := s.permissionRepo.GetPermission(tenantId)
	if err != nil {
		return nil, err
	}
	if permission == nil {
		permission = &model.PluginPermission{
			TenantId:          tenantId,
			InstallPermission: model.PermissionEveryone,
			DebugPermission:   model.PermissionEveryone,
		}
	}
	return permission, nil
}

// ChangePermission 覆盖租户权限策略
func (s *PluginPermissionService) ChangePermission(tenantId, installPermission, debugPermission string) error {
	if !model.ValidPermission(installPermission) || !model.ValidPermission(debugPermission) {
		return ErrInvalidPermission
	}
	err := s.permissionRepo.SetPermission(&model.PluginPermission{
		TenantId:          tenantId,
		InstallPermission: installPermission,
		DebugPermission:   debugPermission,
	})
	if err != nil {
		return err
	}
	log.Infow("[PluginPermissionService] permission changed",
		"tenantId", tenantId,
		"install", installPermission,
		"debug", debugPermission,
	)
	return nil
}

// CanInstall 判断角色能否安装/卸载插件
func (s *PluginPermissionService) CanInstall(_ context.Context, tenantId, role string) (bool, error) {
	permission, err := s.GetPermission(tenantId)
	if err != nil {
		return false, err
	}
	return model.Allows(permission.InstallPermission, role), nil
}

// CanDebug 判断角色能否获取调试密钥
func (s *PluginPermissionService) CanDebug(_ context.Context, tenantId, role string) (bool, error) {
	permission, err := s.GetPermission(tenantId)
	if err != nil {
		return false, err
	}
	return model.Allows(permission.DebugPermission, role), nil
}
