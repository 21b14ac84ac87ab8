package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/pkg/ctx"
	"github.com/plugrail/plugrail/pkg/id"
	"github.com/plugrail/plugrail/pkg/log"
	"github.com/plugrail/plugrail/pkg/pluginid"
)

/**
 * @file: service_plugin_upgrade.go
 * @description: 插件升级编排
 */

// ErrDifferentPlugin 升级前后必须是同一插件
var ErrDifferentPlugin = errors.New("original and new identifiers refer to different plugins")

// PluginUpgradeService 插件升级服务
type PluginUpgradeService struct {
	ctx      *ctx.Context
	gateway  daemon.Gateway
	taskRepo taskStore
}

func NewPluginUpgradeService(c *ctx.Context, gateway daemon.Gateway) *PluginUpgradeService {
	return &PluginUpgradeService{
		ctx:      c,
		gateway:  gateway,
		taskRepo: repo.NewPluginTaskRepo(c),
	}
}

// UpgradeFromMarketplace 升级到市场上的另一个版本
func (s *PluginUpgradeService) UpgradeFromMarketplace(tenantId, originalIdentifier, newIdentifier string) (*model.PluginInstallTask, error) {
	meta := daemon.InstallMeta{MarketplaceID: newIdentifier}
	return s.upgrade(tenantId, originalIdentifier, newIdentifier, TaskSourceMarketplace, meta)
}

// UpgradeFromGithub 升级到github release上的另一个版本
func (s *PluginUpgradeService) UpgradeFromGithub(tenantId, originalIdentifier, newIdentifier, repoAddr, version, pkg string) (*model.PluginInstallTask, error) {
	meta := daemon.InstallMeta{Repo: repoAddr, Version: version, Package: pkg}
	return s.upgrade(tenantId, originalIdentifier, newIdentifier, TaskSourceGithub, meta)
}

func (s *PluginUpgradeService) upgrade(tenantId, originalIdentifier, newIdentifier, source string, meta daemon.InstallMeta) (*model.PluginInstallTask, error) {
	original, err := pluginid.Parse(originalIdentifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pluginid.ErrInvalidIdentifier, originalIdentifier)
	}
	next, err := pluginid.Parse(newIdentifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pluginid.ErrInvalidIdentifier, newIdentifier)
	}
	if !pluginid.SamePlugin(original, next) {
		return nil, ErrDifferentPlugin
	}

	// 降级不拦截，但在任务项里标注出来
	var note string
	if pluginid.Compare(next.Version, original.Version) < 0 {
		note = fmt.Sprintf("downgrade from %s to %s", original.Version, next.Version)
		log.Warnw("[PluginUpgradeService] downgrade requested",
			"tenantId", tenantId, "pluginId", original.PluginID(),
			"from", original.Version, "to", next.Version,
		)
	}

	task := &model.PluginInstallTask{
		TaskID:   id.GetUUIDWithoutDashes(),
		TenantId: tenantId,
		Source:   source,
		Items: []model.PluginInstallTaskItem{{
			UniqueIdentifier: newIdentifier,
			PluginId:         next.PluginID(),
			Status:           model.TaskItemStatusPending,
			Message:          note,
			UpdateTime:       time.Now(),
		}},
	}
	if err := s.taskRepo.CreateTask(task); err != nil {
		return nil, err
	}

	resp, err := s.gateway.UpgradePlugin(s.ctx.GetCtx(), tenantId, originalIdentifier, newIdentifier, source, meta)
	if err != nil {
		if _, derr := s.taskRepo.DeleteTask(tenantId, task.TaskID); derr != nil {
			log.Errorw("[PluginUpgradeService] failed to roll back task",
				"taskId", task.TaskID, "error", derr)
		}
		return nil, err
	}

	if resp.AllInstalled {
		if err := s.taskRepo.UpdateItem(tenantId, task.TaskID, model.PluginInstallTaskItem{
			UniqueIdentifier: newIdentifier,
			Status:           model.TaskItemStatusSuccess,
		}); err != nil {
			log.Errorw("[PluginUpgradeService] failed to mark upgrade done",
				"taskId", task.TaskID, "error", err)
		}
	} else if resp.TaskID != "" {
		if err := s.taskRepo.AttachDaemonTask(tenantId, task.TaskID, resp.TaskID); err != nil {
			log.Errorw("[PluginUpgradeService] failed to attach daemon task",
				"taskId", task.TaskID, "error", err)
		}
	}
	return s.taskRepo.GetTask(tenantId, task.TaskID)
}
