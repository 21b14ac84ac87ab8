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
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plugrail/plugrail/internal/engine/config"
	"github.com/plugrail/plugrail/internal/engine/service"
	"github.com/plugrail/plugrail/pkg/ctx"
	httpx "github.com/plugrail/plugrail/pkg/http"
	"github.com/plugrail/plugrail/pkg/http/middleware"
	"github.com/plugrail/plugrail/pkg/version"
)

type Router struct {
	Http *httpx.Http
	Ctx  *ctx.Context
	Conf *config.AppConfig

	PluginService      *service.PluginService
	TaskService        *service.PluginTaskService
	UpgradeService     *service.PluginUpgradeService
	PermissionService  *service.PluginPermissionService
	AutoUpgradeService *service.PluginAutoUpgradeService
}

func NewRouter(conf *config.AppConfig, c *ctx.Context,
	plugin *service.PluginService,
	task *service.PluginTaskService,
	upgrade *service.PluginUpgradeService,
	permission *service.PluginPermissionService,
	autoUpgrade *service.PluginAutoUpgradeService,
) *Router {
	return &Router{
		Http:               &conf.Http,
		Ctx:                c,
		Conf:               conf,
		PluginService:      plugin,
		TaskService:        task,
		UpgradeService:     upgrade,
		PermissionService:  permission,
		AutoUpgradeService: autoUpgrade,
	}
}

func (rt *Router) Router() *fiber.App {

	app := fiber.New(fiber.Config{
		BodyLimit:    rt.Http.BodyLimit,
		ReadTimeout:  time.Duration(rt.Http.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(rt.Http.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(rt.Http.IdleTimeout) * time.Second,
	})

	app.Use(middleware.CorsMiddleware())
	app.Use(middleware.ExceptionMiddleware)
	app.Use(middleware.AccessLogMiddleware(rt.Http))
	app.Use(middleware.UnifiedResponseMiddleware())

	if rt.Http.ExposeMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})

	debugRouter(app.Group("/debug/pprof"))

	api := app.Group(rt.Http.ContextPath)
	rt.routerGroup(api)

	return app
}

func (rt *Router) routerGroup(r fiber.Router) {

	auth := middleware.AuthorizationMiddleware(rt.Http.Auth.SecretKey, rt.Ctx.Redis)
	installPerm := middleware.PluginInstallPermission(rt.PermissionService)
	debugPerm := middleware.PluginDebugPermission(rt.PermissionService)

	plugin := r.Group("/workspaces/current/plugin")
	{
		rt.pluginRouter(plugin, auth, installPerm, debugPerm)
		rt.pluginTaskRouter(plugin, auth)
		rt.pluginPolicyRouter(plugin, auth)
	}
}
