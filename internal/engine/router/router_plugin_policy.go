package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plugrail/plugrail/internal/engine/constant"
	httpx "github.com/plugrail/plugrail/pkg/http"
	"github.com/plugrail/plugrail/pkg/http/middleware"
)

/**
 * @file: router_plugin_policy.go
 * @description: 租户插件权限与自动升级策略
 */

func (rt *Router) pluginPolicyRouter(r fiber.Router, auth fiber.Handler) {
	r.Get("/permission/fetch", auth, rt.fetchPermission)
	r.Post("/permission/change", auth, middleware.AdminOnly(), rt.changePermission)

	preferences := r.Group("/preferences", auth)
	{
		preferences.Get("/fetch", rt.fetchPreferences)
		preferences.Post("/change", middleware.AdminOnly(), rt.changePreferences)
		preferences.Post("/autoupgrade/exclude", rt.excludeFromAutoUpgrade)
	}
}

// fetchPermission 查询权限策略
func (rt *Router) fetchPermission(c *fiber.Ctx) error {
	permission, err := rt.PermissionService.GetPermission(tenantFrom(c))
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{
		"install_permission": permission.InstallPermission,
		"debug_permission":   permission.DebugPermission,
	})
	return nil
}

// changePermission 修改权限策略，仅管理员
func (rt *Router) changePermission(c *fiber.Ctx) error {
	var req struct {
		InstallPermission string `json:"install_permission"`
		DebugPermission   string `json:"debug_permission"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, httpx.BadRequest.Msg, c.Path())
	}
	if err := rt.PermissionService.ChangePermission(tenantFrom(c), req.InstallPermission, req.DebugPermission); err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.OPERATION, "")
	return nil
}

type autoUpgradeBody struct {
	StrategySetting  string   `json:"strategy_setting"`
	UpgradeTimeOfDay int      `json:"upgrade_time_of_day"`
	UpgradeMode      string   `json:"upgrade_mode"`
	ExcludePlugins   []string `json:"exclude_plugins"`
	IncludePlugins   []string `json:"include_plugins"`
}

// fetchPreferences 权限与自动升级策略合并视图
func (rt *Router) fetchPreferences(c *fiber.Ctx) error {
	tenantId := tenantFrom(c)
	permission, err := rt.PermissionService.GetPermission(tenantId)
	if err != nil {
		return repPluginErr(c, err)
	}
	strategy, err := rt.AutoUpgradeService.GetStrategyDetail(tenantId)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{
		"permission": fiber.Map{
			"install_permission": permission.InstallPermission,
			"debug_permission":   permission.DebugPermission,
		},
		"auto_upgrade": strategy,
	})
	return nil
}

// changePreferences 修改权限与自动升级策略，仅管理员
func (rt *Router) changePreferences(c *fiber.Ctx) error {
	var req struct {
		Permission *struct {
			InstallPermission string `json:"install_permission"`
			DebugPermission   string `json:"debug_permission"`
		} `json:"permission"`
		AutoUpgrade *autoUpgradeBody `json:"auto_upgrade"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, httpx.BadRequest.Msg, c.Path())
	}
	tenantId := tenantFrom(c)

	if req.Permission != nil {
		if err := rt.PermissionService.ChangePermission(tenantId, req.Permission.InstallPermission, req.Permission.DebugPermission); err != nil {
			return repPluginErr(c, err)
		}
	}
	if req.AutoUpgrade != nil {
		err := rt.AutoUpgradeService.ChangeStrategy(tenantId,
			req.AutoUpgrade.StrategySetting,
			req.AutoUpgrade.UpgradeTimeOfDay,
			req.AutoUpgrade.UpgradeMode,
			req.AutoUpgrade.ExcludePlugins,
			req.AutoUpgrade.IncludePlugins,
		)
		if err != nil {
			return repPluginErr(c, err)
		}
	}
	c.Locals(constant.OPERATION, "")
	return nil
}

// excludeFromAutoUpgrade 把单个插件从自动升级中排除，幂等
func (rt *Router) excludeFromAutoUpgrade(c *fiber.Ctx) error {
	var req struct {
		PluginId string `json:"plugin_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.PluginId == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "plugin_id is required", c.Path())
	}
	if err := rt.AutoUpgradeService.ExcludePlugin(tenantFrom(c), req.PluginId); err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"success": true})
	return nil
}
