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

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/plugrail/plugrail/internal/engine/config"
	"github.com/plugrail/plugrail/internal/engine/constant"
	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/internal/pkg/marketplace"
	"github.com/plugrail/plugrail/pkg/cache"
	"github.com/plugrail/plugrail/pkg/ctx"
	"github.com/plugrail/plugrail/pkg/id"
	"github.com/plugrail/plugrail/pkg/log"
	"github.com/plugrail/plugrail/pkg/pluginid"
)

var (
	ErrPackageTooLarge = errors.New("plugin package exceeds size limit")
	ErrBundleTooLarge  = errors.New("plugin bundle exceeds size limit")
)

// 任务来源
const (
	TaskSourcePackage     = model.PluginSourcePackage
	TaskSourceGithub      = model.PluginSourceGithub
	TaskSourceMarketplace = model.PluginSourceMarketplace
	TaskSourceBundle      = "bundle"
)

// PluginService 插件安装编排服务
type PluginService struct {
	ctx        *ctx.Context
	gateway    daemon.Gateway
	market     *marketplace.Client
	pluginRepo *repo.PluginRepo
	taskRepo   taskStore
	assets     *cache.AssetCache
	conf       config.PluginConfig
}

func NewPluginService(c *ctx.Context, gateway daemon.Gateway, market *marketplace.Client, conf config.PluginConfig) *PluginService {
	return &PluginService{
		ctx:        c,
		gateway:    gateway,
		market:     market,
		pluginRepo: repo.NewPluginRepo(c),
		taskRepo:   repo.NewPluginTaskRepo(c),
		assets:     cache.NewAssetCache(c.Redis, constant.PluginAssetKey, time.Duration(conf.AssetCacheTTL)*time.Second),
		conf:       conf,
	}
}

// UploadPackage 暂存一个本地上传的插件包，返回其唯一标识
func (s *PluginService) UploadPackage(tenantId string, pkg []byte, filename string) (*daemon.UploadResult, error) {
	if int64(len(pkg)) > s.conf.MaxPackageSize {
		return nil, ErrPackageTooLarge
	}
	result, err := s.gateway.UploadPackage(s.ctx.GetCtx(), tenantId, pkg, filename)
	if err != nil {
		return nil, err
	}
	log.Infow("[PluginService] package uploaded",
		"tenantId", tenantId,
		"uniqueIdentifier", result.UniqueIdentifier,
	)
	return result, nil
}

// UploadGithubPackage 从github release拉取插件包并暂存
func (s *PluginService) UploadGithubPackage(tenantId, repoAddr, version, asset string) (*daemon.UploadResult, error) {
	result, err := s.gateway.UploadFromGithub(s.ctx.GetCtx(), tenantId, repoAddr, version, asset)
	if err != nil {
		return nil, err
	}
	log.Infow("[PluginService] github package uploaded",
		"tenantId", tenantId,
		"repo", repoAddr,
		"uniqueIdentifier", result.UniqueIdentifier,
	)
	return result, nil
}

// UploadBundle 暂存离线包并返回其依赖清单，不触发安装
func (s *PluginService) UploadBundle(tenantId string, bundle []byte, filename string) ([]daemon.BundleDependency, error) {
	if int64(len(bundle)) > s.conf.MaxBundleSize {
		return nil, ErrBundleTooLarge
	}
	return s.gateway.UploadBundle(s.ctx.GetCtx(), tenantId, bundle, filename)
}

// FetchManifest 查询暂存包的清单
func (s *PluginService) FetchManifest(tenantId, uniqueIdentifier string) (*daemon.Manifest, error) {
	if _, err := pluginid.Parse(uniqueIdentifier); err != nil {
		return nil, err
	}
	return s.gateway.FetchManifest(s.ctx.GetCtx(), tenantId, uniqueIdentifier)
}

// FetchMarketplaceDeclaration 从市场拉取插件声明
func (s *PluginService) FetchMarketplaceDeclaration(uniqueIdentifier string) (*marketplace.Declaration, error) {
	return s.market.FetchDeclaration(s.ctx.GetCtx(), uniqueIdentifier)
}

// InstallFromIdentifiers 按唯一标识批量安装，返回跟踪任务。
// 守护进程不可达时不留任务残骸。
func (s *PluginService) InstallFromIdentifiers(tenantId, source string, uniqueIdentifiers []string, metas []daemon.InstallMeta) (*model.PluginInstallTask, error) {
	if len(uniqueIdentifiers) == 0 {
		return nil, pluginid.ErrInvalidIdentifier
	}
	items := make([]model.PluginInstallTaskItem, 0, len(uniqueIdentifiers))
	for _, uid := range uniqueIdentifiers {
		ident, err := pluginid.Parse(uid)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", pluginid.ErrInvalidIdentifier, uid)
		}
		items = append(items, model.PluginInstallTaskItem{
			UniqueIdentifier: uid,
			PluginId:         ident.PluginID(),
			Status:           model.TaskItemStatusPending,
			UpdateTime:       time.Now(),
		})
	}
	if metas == nil {
		metas = make([]daemon.InstallMeta, len(uniqueIdentifiers))
	}

	task := &model.PluginInstallTask{
		TaskID:   id.GetUUIDWithoutDashes(),
		TenantId: tenantId,
		Source:   source,
		Items:    items,
	}
	if err := s.taskRepo.CreateTask(task); err != nil {
		return nil, err
	}

	resp, err := s.gateway.InstallFromIdentifiers(s.ctx.GetCtx(), tenantId, uniqueIdentifiers, source, metas)
	if err != nil {
		// 回滚任务，避免留下永远pending的残骸
		if _, derr := s.taskRepo.DeleteTask(tenantId, task.TaskID); derr != nil {
			log.Errorw("[PluginService] failed to roll back task after daemon error",
				"taskId", task.TaskID, "error", derr)
		}
		return nil, err
	}

	if resp.AllInstalled {
		for i := range task.Items {
			task.Items[i].Status = model.TaskItemStatusSuccess
			if err := s.taskRepo.UpdateItem(tenantId, task.TaskID, task.Items[i]); err != nil {
				log.Errorw("[PluginService] failed to mark item installed",
					"taskId", task.TaskID, "item", task.Items[i].UniqueIdentifier, "error", err)
			}
			s.recordInstallation(tenantId, task.Items[i].UniqueIdentifier, source, metaAt(metas, i))
		}
	} else if resp.TaskID != "" {
		if err := s.taskRepo.AttachDaemonTask(tenantId, task.TaskID, resp.TaskID); err != nil {
			log.Errorw("[PluginService] failed to attach daemon task",
				"taskId", task.TaskID, "error", err)
		}
	}

	return s.taskRepo.GetTask(tenantId, task.TaskID)
}

// InstallFromMarketplace 从市场安装
func (s *PluginService) InstallFromMarketplace(tenantId string, uniqueIdentifiers []string) (*model.PluginInstallTask, error) {
	metas := make([]daemon.InstallMeta, len(uniqueIdentifiers))
	for i, uid := range uniqueIdentifiers {
		metas[i] = daemon.InstallMeta{MarketplaceID: uid}
	}
	return s.InstallFromIdentifiers(tenantId, TaskSourceMarketplace, uniqueIdentifiers, metas)
}

// InstallFromGithub 安装一个已通过github暂存的插件包
func (s *PluginService) InstallFromGithub(tenantId, uniqueIdentifier, repoAddr, version, pkg string) (*model.PluginInstallTask, error) {
	meta := daemon.InstallMeta{Repo: repoAddr, Version: version, Package: pkg}
	return s.InstallFromIdentifiers(tenantId, TaskSourceGithub, []string{uniqueIdentifier}, []daemon.InstallMeta{meta})
}

// bundleResolution 离线包中一个依赖的解析结果
type bundleResolution struct {
	uniqueIdentifier string
	meta             daemon.InstallMeta
	err              error
}

// InstallFromBundle 解析离线包依赖并安装。单个依赖解析失败不阻断
// 其余依赖，失败项以failed状态直接进入任务。
func (s *PluginService) InstallFromBundle(tenantId string, deps []daemon.BundleDependency) (*model.PluginInstallTask, error) {
	if len(deps) == 0 {
		return nil, errors.New("bundle has no dependencies")
	}

	resolutions := make([]bundleResolution, len(deps))
	var g errgroup.Group
	g.SetLimit(4)
	for i := range deps {
		i := i
		g.Go(func() error {
			resolutions[i] = s.resolveDependency(tenantId, deps[i])
			return nil
		})
	}
	_ = g.Wait()

	var installable []string
	var metas []daemon.InstallMeta
	items := make([]model.PluginInstallTaskItem, 0, len(deps))
	now := time.Now()
	for i, r := range resolutions {
		if r.err != nil {
			pid := ""
			if ident, perr := pluginid.Parse(r.uniqueIdentifier); perr == nil {
				pid = ident.PluginID()
			}
			items = append(items, model.PluginInstallTaskItem{
				UniqueIdentifier: r.uniqueIdentifier,
				PluginId:         pid,
				Status:           model.TaskItemStatusFailed,
				Message:          r.err.Error(),
				UpdateTime:       now,
			})
			log.Warnw("[PluginService] bundle dependency resolution failed",
				"tenantId", tenantId, "index", i, "error", r.err)
			continue
		}
		ident, perr := pluginid.Parse(r.uniqueIdentifier)
		if perr != nil {
			items = append(items, model.PluginInstallTaskItem{
				UniqueIdentifier: r.uniqueIdentifier,
				Status:           model.TaskItemStatusFailed,
				Message:          perr.Error(),
				UpdateTime:       now,
			})
			continue
		}
		items = append(items, model.PluginInstallTaskItem{
			UniqueIdentifier: r.uniqueIdentifier,
			PluginId:         ident.PluginID(),
			Status:           model.TaskItemStatusPending,
			UpdateTime:       now,
		})
		installable = append(installable, r.uniqueIdentifier)
		metas = append(metas, r.meta)
	}

	task := &model.PluginInstallTask{
		TaskID:   id.GetUUIDWithoutDashes(),
		TenantId: tenantId,
		Source:   TaskSourceBundle,
		Items:    items,
	}
	if err := s.taskRepo.CreateTask(task); err != nil {
		return nil, err
	}

	// 全部解析失败时任务直接以失败项落库，不触发守护进程
	if len(installable) == 0 {
		return s.taskRepo.GetTask(tenantId, task.TaskID)
	}

	resp, err := s.gateway.InstallFromIdentifiers(s.ctx.GetCtx(), tenantId, installable, TaskSourceBundle, metas)
	if err != nil {
		if _, derr := s.taskRepo.DeleteTask(tenantId, task.TaskID); derr != nil {
			log.Errorw("[PluginService] failed to roll back bundle task",
				"taskId", task.TaskID, "error", derr)
		}
		return nil, err
	}
	if resp.AllInstalled {
		for i, uid := range installable {
			if err := s.taskRepo.UpdateItem(tenantId, task.TaskID, model.PluginInstallTaskItem{
				UniqueIdentifier: uid,
				Status:           model.TaskItemStatusSuccess,
			}); err != nil {
				log.Errorw("[PluginService] failed to mark bundle item installed",
					"taskId", task.TaskID, "item", uid, "error", err)
			}
			s.recordInstallation(tenantId, uid, TaskSourceBundle, metaAt(metas, i))
		}
	} else if resp.TaskID != "" {
		if err := s.taskRepo.AttachDaemonTask(tenantId, task.TaskID, resp.TaskID); err != nil {
			log.Errorw("[PluginService] failed to attach daemon task",
				"taskId", task.TaskID, "error", err)
		}
	}
	return s.taskRepo.GetTask(tenantId, task.TaskID)
}

// resolveDependency 将离线包依赖解析成可安装的唯一标识
func (s *PluginService) resolveDependency(tenantId string, dep daemon.BundleDependency) bundleResolution {
	switch dep.Type {
	case "marketplace":
		uid := dep.Value.UniqueIdentifier
		if uid == "" {
			return bundleResolution{err: errors.New("marketplace dependency missing unique identifier")}
		}
		if _, err := s.market.FetchDeclaration(s.ctx.GetCtx(), uid); err != nil {
			return bundleResolution{uniqueIdentifier: uid, err: err}
		}
		return bundleResolution{uniqueIdentifier: uid, meta: daemon.InstallMeta{MarketplaceID: uid}}
	case "github":
		result, err := s.gateway.UploadFromGithub(s.ctx.GetCtx(), tenantId, dep.Value.Repo, dep.Value.Version, dep.Value.Package)
		if err != nil {
			return bundleResolution{err: fmt.Errorf("github dependency %s: %w", dep.Value.Repo, err)}
		}
		return bundleResolution{
			uniqueIdentifier: result.UniqueIdentifier,
			meta: daemon.InstallMeta{
				Repo:    dep.Value.Repo,
				Version: dep.Value.Version,
				Package: dep.Value.Package,
			},
		}
	case "package":
		uid := dep.Value.UniqueIdentifier
		if uid == "" {
			return bundleResolution{err: errors.New("package dependency missing unique identifier")}
		}
		return bundleResolution{uniqueIdentifier: uid}
	default:
		return bundleResolution{err: fmt.Errorf("unknown bundle dependency type: %s", dep.Type)}
	}
}

// ListPlugins 列出租户已安装插件（守护进程为准）
func (s *PluginService) ListPlugins(tenantId string, page, pageSize int) ([]daemon.Installation, int64, error) {
	return s.gateway.ListPlugins(s.ctx.GetCtx(), tenantId, page, pageSize)
}

// ListInstallationsFromIDs 按插件ID集合查询安装记录
func (s *PluginService) ListInstallationsFromIDs(tenantId string, pluginIds []string) ([]daemon.Installation, error) {
	return s.gateway.ListInstallationsFromIDs(s.ctx.GetCtx(), tenantId, pluginIds)
}

// ListLatestVersions 查询市场上各插件的最新版本
func (s *PluginService) ListLatestVersions(pluginIds []string) ([]marketplace.PluginVersion, error) {
	return s.market.ListLatestVersions(s.ctx.GetCtx(), pluginIds)
}

// Uninstall 卸载插件并清理本地缓存视图
func (s *PluginService) Uninstall(tenantId, installationId, pluginId string) (bool, error) {
	ok, err := s.gateway.Uninstall(s.ctx.GetCtx(), tenantId, installationId)
	if err != nil {
		return false, err
	}
	if ok && pluginId != "" {
		if err := s.pluginRepo.DeleteInstallation(tenantId, pluginId); err != nil {
			log.Errorw("[PluginService] failed to drop cached installation",
				"tenantId", tenantId, "pluginId", pluginId, "error", err)
		}
	}
	return ok, nil
}

// FetchAsset 读取插件图标等静态资源，redis缓存优先
func (s *PluginService) FetchAsset(tenantId, filename string) ([]byte, string, error) {
	key := tenantId + "/" + filename
	if data, mimetype, err := s.assets.Get(s.ctx.GetCtx(), key); err == nil {
		return data, mimetype, nil
	} else if !errors.Is(err, cache.ErrAssetMiss) {
		log.Warnw("[PluginService] asset cache read failed", "key", key, "error", err)
	}

	data, mimetype, err := s.gateway.FetchAsset(s.ctx.GetCtx(), tenantId, filename)
	if err != nil {
		return nil, "", err
	}
	if err := s.assets.Set(s.ctx.GetCtx(), key, data, mimetype); err != nil {
		log.Warnw("[PluginService] asset cache write failed", "key", key, "error", err)
	}
	return data, mimetype, nil
}

// DebuggingKey 获取远程调试密钥
func (s *PluginService) DebuggingKey(tenantId string) (string, error) {
	return s.gateway.DebuggingKey(s.ctx.GetCtx(), tenantId)
}

// recordInstallation 更新本地安装缓存视图，失败仅记日志
func (s *PluginService) recordInstallation(tenantId, uniqueIdentifier, source string, meta daemon.InstallMeta) {
	ident, err := pluginid.Parse(uniqueIdentifier)
	if err != nil {
		return
	}
	metaJSON, _ := json.Marshal(meta)
	installation := &model.PluginInstallation{
		TenantId:         tenantId,
		PluginId:         ident.PluginID(),
		UniqueIdentifier: uniqueIdentifier,
		Version:          ident.Version,
		Source:           source,
		Checksum:         ident.Checksum,
		Meta:             datatypes.JSON(metaJSON),
		InstalledAt:      time.Now(),
	}
	if err := s.pluginRepo.SaveInstallation(installation); err != nil {
		log.Errorw("[PluginService] failed to save cached installation",
			"tenantId", tenantId, "pluginId", ident.PluginID(), "error", err)
	}
}

func metaAt(metas []daemon.InstallMeta, i int) daemon.InstallMeta {
	if i < len(metas) {
		return metas[i]
	}
	return daemon.InstallMeta{}
}
