// Copyright 2025 Plugrail Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/plugrail/plugrail/internal/engine/constant"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/internal/engine/service"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
	httpx "github.com/plugrail/plugrail/pkg/http"
	"github.com/plugrail/plugrail/pkg/http/middleware"
	"github.com/plugrail/plugrail/pkg/log"
	"github.com/plugrail/plugrail/pkg/pluginid"
)

func (rt *Router) pluginRouter(r fiber.Router, auth, installPerm, debugPerm fiber.Handler) {

	// 图标无需登录，前端img标签直接引用
	r.Get("/icon", rt.pluginIcon)

	r.Get("/list", auth, rt.listPlugins)
	r.Post("/list/latest-versions", auth, rt.listLatestVersions)
	r.Post("/list/installations/ids", auth, rt.listInstallationsFromIDs)
	r.Get("/fetch-manifest", auth, rt.fetchManifest)
	r.Get("/marketplace/pkg", auth, rt.marketplacePkg)
	r.Get("/debugging-key", auth, debugPerm, rt.debuggingKey)

	r.Post("/upload/pkg", auth, installPerm, rt.uploadPackage)
	r.Post("/upload/github", auth, installPerm, rt.uploadGithubPackage)
	r.Post("/upload/bundle", auth, installPerm, rt.uploadBundle)

	r.Post("/install/pkg", auth, installPerm, rt.installFromPackage)
	r.Post("/install/github", auth, installPerm, rt.installFromGithub)
	r.Post("/install/marketplace", auth, installPerm, rt.installFromMarketplace)
	r.Post("/install/bundle", auth, installPerm, rt.installFromBundle)

	r.Post("/upgrade/marketplace", auth, installPerm, rt.upgradeFromMarketplace)
	r.Post("/upgrade/github", auth, installPerm, rt.upgradeFromGithub)

	r.Post("/uninstall", auth, installPerm, rt.uninstallPlugin)
}

// repPluginErr 将服务层错误映射为统一错误响应
func repPluginErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pluginid.ErrInvalidIdentifier):
		return httpx.WithRepErrMsg(c, httpx.InvalidPluginIdentifier.Code, err.Error(), c.Path())
	case errors.Is(err, service.ErrPackageTooLarge), errors.Is(err, service.ErrBundleTooLarge):
		return httpx.WithRepErrMsg(c, httpx.PluginPackageTooLarge.Code, err.Error(), c.Path())
	case errors.Is(err, repo.ErrTaskNotFound):
		return httpx.WithRepErrMsg(c, httpx.PluginTaskNotFound.Code, httpx.PluginTaskNotFound.Msg, c.Path())
	case errors.Is(err, service.ErrDifferentPlugin):
		return httpx.WithRepErrMsg(c, httpx.PluginDifferentPlugin.Code, err.Error(), c.Path())
	}
	if derr, ok := daemon.AsError(err); ok {
		if daemon.IsNotFound(err) {
			return httpx.WithRepErrMsg(c, httpx.NotFound.Code, derr.Message, c.Path())
		}
		return httpx.WithRepErrMsg(c, httpx.PluginDaemonFailed.Code, derr.Message, c.Path())
	}
	return httpx.WithRepErrMsg(c, httpx.Failed.Code, err.Error(), c.Path())
}

func tenantFrom(c *fiber.Ctx) string {
	if claims := middleware.ClaimsFrom(c); claims != nil {
		return claims.TenantId
	}
	return ""
}

// pluginListDetail 列表响应的契约字段
type pluginListDetail struct {
	Plugins []daemon.Installation `json:"plugins"`
	Total   int64                 `json:"total"`
}

// listPlugins 插件列表
func (rt *Router) listPlugins(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	plugins, total, err := rt.PluginService.ListPlugins(tenantFrom(c), page, pageSize)
	if err != nil {
		log.Errorf("[PluginRouter] failed to list plugins: %v", err)
		return repPluginErr(c, err)
	}
	if plugins == nil {
		plugins = []daemon.Installation{}
	}
	c.Locals(constant.DETAIL, pluginListDetail{Plugins: plugins, Total: total})
	return nil
}

// listLatestVersions 查询市场最新版本
func (rt *Router) listLatestVersions(c *fiber.Ctx) error {
	var req struct {
		PluginIds []string `json:"plugin_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, httpx.BadRequest.Msg, c.Path())
	}
	versions, err := rt.PluginService.ListLatestVersions(req.PluginIds)
	if err != nil {
		log.Errorf("[PluginRouter] failed to list latest versions: %v", err)
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"versions": versions})
	return nil
}

// listInstallationsFromIDs 按插件ID集合查询安装记录
func (rt *Router) listInstallationsFromIDs(c *fiber.Ctx) error {
	var req struct {
		PluginIds []string `json:"plugin_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, httpx.BadRequest.Msg, c.Path())
	}
	installations, err := rt.PluginService.ListInstallationsFromIDs(tenantFrom(c), req.PluginIds)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"plugins": installations})
	return nil
}

// pluginIcon 插件图标，原样输出并允许浏览器缓存
func (rt *Router) pluginIcon(c *fiber.Ctx) error {
	tenantId := c.Query("tenant_id")
	filename := c.Query("filename")
	if tenantId == "" || filename == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "tenant_id and filename are required", c.Path())
	}

	data, mimetype, err := rt.PluginService.FetchAsset(tenantId, filename)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.RAW, true)
	c.Set(fiber.HeaderContentType, mimetype)
	c.Set(fiber.HeaderCacheControl, fmt.Sprintf("public, max-age=%d", rt.Conf.Plugin.AssetCacheMaxAge))
	return c.Send(data)
}

// fetchManifest 查询暂存包清单
func (rt *Router) fetchManifest(c *fiber.Ctx) error {
	uid := c.Query("plugin_unique_identifier")
	manifest, err := rt.PluginService.FetchManifest(tenantFrom(c), uid)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, manifest)
	return nil
}

// marketplacePkg 查询市场插件声明
func (rt *Router) marketplacePkg(c *fiber.Ctx) error {
	uid := c.Query("plugin_unique_identifier")
	decl, err := rt.PluginService.FetchMarketplaceDeclaration(uid)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"manifest": decl.Manifest})
	return nil
}

// debuggingKey 获取远程调试密钥
func (rt *Router) debuggingKey(c *fiber.Ctx) error {
	key, err := rt.PluginService.DebuggingKey(tenantFrom(c))
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"key": key})
	return nil
}

func readUpload(c *fiber.Ctx, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

// uploadPackage 上传本地插件包
func (rt *Router) uploadPackage(c *fiber.Ctx) error {
	data, filename, err := readUpload(c, "pkg")
	if err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "pkg file is required", c.Path())
	}
	result, err := rt.PluginService.UploadPackage(tenantFrom(c), data, filename)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, result)
	return nil
}

// uploadGithubPackage 从github release拉取插件包
func (rt *Router) uploadGithubPackage(c *fiber.Ctx) error {
	var req struct {
		Repo    string `json:"repo"`
		Version string `json:"version"`
		Package string `json:"package"`
	}
	if err := c.BodyParser(&req); err != nil || req.Repo == "" || req.Version == "" || req.Package == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "repo, version and package are required", c.Path())
	}
	result, err := rt.PluginService.UploadGithubPackage(tenantFrom(c), req.Repo, req.Version, req.Package)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, result)
	return nil
}

// uploadBundle 上传离线包，返回依赖清单
func (rt *Router) uploadBundle(c *fiber.Ctx) error {
	data, filename, err := readUpload(c, "bundle")
	if err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "bundle file is required", c.Path())
	}
	deps, err := rt.PluginService.UploadBundle(tenantFrom(c), data, filename)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, deps)
	return nil
}

// installFromPackage 安装已上传的插件包
func (rt *Router) installFromPackage(c *fiber.Ctx) error {
	var req struct {
		PluginUniqueIdentifiers []string `json:"plugin_unique_identifiers"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.PluginUniqueIdentifiers) == 0 {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "plugin_unique_identifiers is required", c.Path())
	}
	task, err := rt.PluginService.InstallFromIdentifiers(tenantFrom(c), service.TaskSourcePackage, req.PluginUniqueIdentifiers, nil)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// installFromGithub 安装已通过github暂存的插件
func (rt *Router) installFromGithub(c *fiber.Ctx) error {
	var req struct {
		PluginUniqueIdentifier string `json:"plugin_unique_identifier"`
		Repo                   string `json:"repo"`
		Version                string `json:"version"`
		Package                string `json:"package"`
	}
	if err := c.BodyParser(&req); err != nil || req.PluginUniqueIdentifier == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "plugin_unique_identifier is required", c.Path())
	}
	task, err := rt.PluginService.InstallFromGithub(tenantFrom(c), req.PluginUniqueIdentifier, req.Repo, req.Version, req.Package)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// installFromMarketplace 从市场安装
func (rt *Router) installFromMarketplace(c *fiber.Ctx) error {
	var req struct {
		PluginUniqueIdentifiers []string `json:"plugin_unique_identifiers"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.PluginUniqueIdentifiers) == 0 {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "plugin_unique_identifiers is required", c.Path())
	}
	task, err := rt.PluginService.InstallFromMarketplace(tenantFrom(c), req.PluginUniqueIdentifiers)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// installFromBundle 安装离线包里选中的依赖
func (rt *Router) installFromBundle(c *fiber.Ctx) error {
	var req struct {
		Dependencies []daemon.BundleDependency `json:"dependencies"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.Dependencies) == 0 {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "dependencies is required", c.Path())
	}
	task, err := rt.PluginService.InstallFromBundle(tenantFrom(c), req.Dependencies)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// upgradeFromMarketplace 升级到市场新版本
func (rt *Router) upgradeFromMarketplace(c *fiber.Ctx) error {
	var req struct {
		OriginalPluginUniqueIdentifier string `json:"original_plugin_unique_identifier"`
		NewPluginUniqueIdentifier      string `json:"new_plugin_unique_identifier"`
	}
	if err := c.BodyParser(&req); err != nil || req.OriginalPluginUniqueIdentifier == "" || req.NewPluginUniqueIdentifier == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "original and new identifiers are required", c.Path())
	}
	task, err := rt.UpgradeService.UpgradeFromMarketplace(tenantFrom(c), req.OriginalPluginUniqueIdentifier, req.NewPluginUniqueIdentifier)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// upgradeFromGithub 升级到github新版本
func (rt *Router) upgradeFromGithub(c *fiber.Ctx) error {
	var req struct {
		OriginalPluginUniqueIdentifier string `json:"original_plugin_unique_identifier"`
		NewPluginUniqueIdentifier      string `json:"new_plugin_unique_identifier"`
		Repo                           string `json:"repo"`
		Version                        string `json:"version"`
		Package                        string `json:"package"`
	}
	if err := c.BodyParser(&req); err != nil || req.OriginalPluginUniqueIdentifier == "" || req.NewPluginUniqueIdentifier == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "original and new identifiers are required", c.Path())
	}
	task, err := rt.UpgradeService.UpgradeFromGithub(tenantFrom(c),
		req.OriginalPluginUniqueIdentifier, req.NewPluginUniqueIdentifier,
		req.Repo, req.Version, req.Package)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// uninstallPlugin 卸载插件
func (rt *Router) uninstallPlugin(c *fiber.Ctx) error {
	var req struct {
		PluginInstallationId string `json:"plugin_installation_id"`
		PluginId             string `json:"plugin_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.PluginInstallationId == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "plugin_installation_id is required", c.Path())
	}
	ok, err := rt.PluginService.Uninstall(tenantFrom(c), req.PluginInstallationId, req.PluginId)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"success": ok})
	return nil
}
