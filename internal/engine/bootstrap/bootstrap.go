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

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/plugrail/plugrail/internal/engine/config"
	"github.com/plugrail/plugrail/internal/engine/router"
	"github.com/plugrail/plugrail/internal/engine/service"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/internal/pkg/marketplace"
	"github.com/plugrail/plugrail/pkg/cache"
	"github.com/plugrail/plugrail/pkg/ctx"
	"github.com/plugrail/plugrail/pkg/database"
	"github.com/plugrail/plugrail/pkg/log"
)

type App struct {
	HttpApp     *fiber.App
	TaskService *service.PluginTaskService
	Ctx         *ctx.Context
	AppConf     config.AppConfig
}

// NewApp wires config, stores, daemon gateway and routes together.
func NewApp(configFile string) (*App, func(), error) {
	appConf := config.NewConf(configFile)

	log.MustInit(&appConf.Log)

	db, err := database.NewDatabase(appConf.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("init mysql: %w", err)
	}

	mongoClient, err := database.NewMongoDB(appConf.Database.MongoDB, context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("init mongodb: %w", err)
	}

	rdb, err := cache.NewRedis(appConf.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("init redis: %w", err)
	}

	appCtx := ctx.NewContext(context.Background(), db, mongoClient, rdb, log.GetLogger())

	gateway := daemon.NewGateway(appConf.Daemon)
	market := marketplace.NewClient(appConf.Marketplace)

	pluginService := service.NewPluginService(appCtx, gateway, market, appConf.Plugin)
	taskService, err := service.NewPluginTaskService(appCtx, gateway, appConf.Plugin)
	if err != nil {
		return nil, nil, fmt.Errorf("init task service: %w", err)
	}
	upgradeService := service.NewPluginUpgradeService(appCtx, gateway)
	permissionService := service.NewPluginPermissionService(appCtx)
	autoUpgradeService := service.NewPluginAutoUpgradeService(appCtx)

	rt := router.NewRouter(&appConf, appCtx,
		pluginService, taskService, upgradeService, permissionService, autoUpgradeService)

	app := &App{
		HttpApp:     rt.Router(),
		TaskService: taskService,
		Ctx:         appCtx,
		AppConf:     appConf,
	}

	cleanup := func() {
		taskService.Stop()
		if err := mongoClient.Close(context.Background()); err != nil {
			log.Errorf("close mongodb: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis: %v", err)
		}
	}
	return app, cleanup, nil
}

// Run starts the reconciler and http server, then blocks until an exit
// signal arrives and shuts down gracefully.
func Run(app *App, cleanup func()) error {
	app.TaskService.StartReconciler()

	addr := fmt.Sprintf("%s:%d", app.AppConf.Http.Host, app.AppConf.Http.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", addr)
		errCh <- app.HttpApp.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-errCh:
		cleanup()
		return err
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	shutdownTimeout := time.Duration(app.AppConf.Http.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if err := app.HttpApp.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	cleanup()
	return nil
}
