package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	httpx "github.com/plugrail/plugrail/pkg/http"
	"github.com/plugrail/plugrail/pkg/log"
)

/**
 * @file: plugin_permission.go
 * @description: tenant plugin install/debug permission gate
 */

// PluginPermissionChecker decides whether a member of a tenant may install
// or debug plugins, after tenant policy is applied.
type PluginPermissionChecker interface {
	CanInstall(ctx context.Context, tenantId, role string) (bool, error)
	CanDebug(ctx context.Context, tenantId, role string) (bool, error)
}

// PluginInstallPermission 校验插件安装权限
func PluginInstallPermission(checker PluginPermissionChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return httpx.WithRepErrMsg(c, httpx.Unauthorized.Code, httpx.Unauthorized.Msg, c.Path())
		}
		ok, err := checker.CanInstall(c.Context(), claims.TenantId, claims.Role)
		if err != nil {
			log.Errorf("plugin install permission check failed: %v", err)
			return httpx.WithRepErrMsg(c, httpx.InternalError.Code, httpx.InternalError.Msg, c.Path())
		}
		if !ok {
			return httpx.WithRepErrMsg(c, httpx.PermissionDenied.Code, httpx.PermissionDenied.Msg, c.Path())
		}
		return c.Next()
	}
}

// PluginDebugPermission 校验插件调试权限
func PluginDebugPermission(checker PluginPermissionChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return httpx.WithRepErrMsg(c, httpx.Unauthorized.Code, httpx.Unauthorized.Msg, c.Path())
		}
		ok, err := checker.CanDebug(c.Context(), claims.TenantId, claims.Role)
		if err != nil {
			log.Errorf("plugin debug permission check failed: %v", err)
			return httpx.WithRepErrMsg(c, httpx.InternalError.Code, httpx.InternalError.Msg, c.Path())
		}
		if !ok {
			return httpx.WithRepErrMsg(c, httpx.PermissionDenied.Code, httpx.PermissionDenied.Msg, c.Path())
		}
		return c.Next()
	}
}

// AdminOnly 仅允许 admin / owner 访问
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return httpx.WithRepErrMsg(c, httpx.Unauthorized.Code, httpx.Unauthorized.Msg, c.Path())
		}
		if claims.Role != "admin" && claims.Role != "owner" {
			return httpx.WithRepErrMsg(c, httpx.Forbidden.Code, httpx.Forbidden.Msg, c.Path())
		}
		return c.Next()
	}
}
