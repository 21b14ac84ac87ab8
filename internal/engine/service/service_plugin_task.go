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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"

	"github.com/plugrail/plugrail/internal/engine/config"
	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/pkg/ctx"
	"github.com/plugrail/plugrail/pkg/log"
)

// 任务项状态只进不退：success/failed是终态，running不回退pending
var itemStatusRank = map[string]int{
	model.TaskItemStatusPending: 0,
	model.TaskItemStatusRunning: 1,
	model.TaskItemStatusSuccess: 2,
	model.TaskItemStatusFailed:  2,
}

// taskStore 任务存储，由 repo.PluginTaskRepo 实现
type taskStore interface {
	CreateTask(task *model.PluginInstallTask) error
	GetTask(tenantId, taskID string) (*model.PluginInstallTask, error)
	ListTasks(tenantId string, page, pageSize int) ([]*model.PluginInstallTask, int64, error)
	ListActiveTasks(limit int) ([]*model.PluginInstallTask, error)
	AttachDaemonTask(tenantId, taskID, daemonTaskID string) error
	UpdateItem(tenantId, taskID string, item model.PluginInstallTaskItem) error
	DeleteTask(tenantId, taskID string) (bool, error)
	DeleteAllTasks(tenantId string) (int64, error)
	DeleteTaskItem(tenantId, taskID, uniqueIdentifier string) (bool, error)
}

// PluginTaskService 安装任务查询与清理，以及后台进度对账
type PluginTaskService struct {
	ctx      *ctx.Context
	gateway  daemon.Gateway
	taskRepo taskStore
	conf     config.PluginConfig

	pool *ants.Pool
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewPluginTaskService(c *ctx.Context, gateway daemon.Gateway, conf config.PluginConfig) (*PluginTaskService, error) {
	pool, err := ants.NewPool(conf.ReconcileWorkers, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &PluginTaskService{
		ctx:      c,
		gateway:  gateway,
		taskRepo: repo.NewPluginTaskRepo(c),
		conf:     conf,
		pool:     pool,
		stop:     make(chan struct{}),
	}, nil
}

// GetTask 查询任务，聚合状态实时推导
func (s *PluginTaskService) GetTask(tenantId, taskID string) (*model.PluginInstallTask, error) {
	task, err := s.taskRepo.GetTask(tenantId, taskID)
	if err != nil {
		return nil, err
	}
	task.Status = task.DeriveStatus()
	return task, nil
}

// ListTasks 按创建时间倒序分页
func (s *PluginTaskService) ListTasks(tenantId string, page, pageSize int) ([]*model.PluginInstallTask, int64, error) {
	tasks, total, err := s.taskRepo.ListTasks(tenantId, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	for _, t := range tasks {
		t.Status = t.DeriveStatus()
	}
	return tasks, total, nil
}

// DeleteTask 删除任务，幂等
func (s *PluginTaskService) DeleteTask(tenantId, taskID string) (bool, error) {
	return s.taskRepo.DeleteTask(tenantId, taskID)
}

// DeleteAllTasks 清空租户全部任务
func (s *PluginTaskService) DeleteAllTasks(tenantId string) (int64, error) {
	return s.taskRepo.DeleteAllTasks(tenantId)
}

// DeleteTaskItem 从任务中移除单个插件项，返回本次是否真正删除
func (s *PluginTaskService) DeleteTaskItem(tenantId, taskID, uniqueIdentifier string) (bool, error) {
	return s.taskRepo.DeleteTaskItem(tenantId, taskID, uniqueIdentifier)
}

// StartReconciler 启动后台进度对账循环。轮询间隔在无变化时按指数退避，
// 出现活跃任务后重置。
func (s *PluginTaskService) StartReconciler() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Duration(s.conf.PollInterval) * time.Second
		bo.MaxInterval = time.Duration(s.conf.PollMaxInterval) * time.Second
		bo.MaxElapsedTime = 0 // run forever
		bo.Reset()

		log.Infow("[PluginTaskService] reconciler started",
			"workers", s.conf.ReconcileWorkers,
			"pollInterval", s.conf.PollInterval,
		)
		for {
			active := s.reconcileOnce()
			var wait time.Duration
			if active > 0 {
				bo.Reset()
				wait = bo.InitialInterval
			} else {
				wait = bo.NextBackOff()
			}
			select {
			case <-s.stop:
				return
			case <-time.After(wait):
			}
		}
	}()
}

// Stop 停止对账循环并释放协程池
func (s *PluginTaskService) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.pool.Release()
	log.Info("[PluginTaskService] reconciler stopped")
}

// reconcileOnce 拉取一批活跃任务并发对账，返回活跃任务数
func (s *PluginTaskService) reconcileOnce() int {
	tasks, err := s.taskRepo.ListActiveTasks(s.conf.ReconcileBatch)
	if err != nil {
		log.Errorw("[PluginTaskService] failed to list active tasks", "error", err)
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			s.reconcileTask(task)
		}); err != nil {
			wg.Done()
			log.Errorw("[PluginTaskService] failed to submit reconcile job",
				"taskId", task.TaskID, "error", err)
		}
	}
	wg.Wait()
	return len(tasks)
}

// daemonAttachGrace 守护进程侧任务ID应在此时限内挂接；超时的任务
// 说明当初创建失败后的回滚删除也没成功
const daemonAttachGrace = 5 * time.Minute

// reconcileTask 将守护进程侧的进度快照并入本地任务
func (s *PluginTaskService) reconcileTask(task *model.PluginInstallTask) {
	if task.DaemonTaskID == "" {
		if time.Since(task.UpdateTime) < daemonAttachGrace {
			return
		}
		for _, item := range task.Items {
			if item.Status == model.TaskItemStatusPending || item.Status == model.TaskItemStatusRunning {
				s.applyItem(task, model.PluginInstallTaskItem{
					UniqueIdentifier: item.UniqueIdentifier,
					Status:           model.TaskItemStatusFailed,
					Message:          "install was never handed off to the daemon",
				})
			}
		}
		return
	}
	snapshot, err := s.gateway.PollProgress(s.ctx.GetCtx(), task.TenantId, task.DaemonTaskID)
	if err != nil {
		log.Warnw("[PluginTaskService] progress poll failed",
			"taskId", task.TaskID, "error", err)
		return
	}
	if snapshot == nil {
		// 守护进程已丢弃该任务记录，悬空的未结束项视为失败收尾
		for _, item := range task.Items {
			if item.Status == model.TaskItemStatusPending || item.Status == model.TaskItemStatusRunning {
				s.applyItem(task, model.PluginInstallTaskItem{
					UniqueIdentifier: item.UniqueIdentifier,
					Status:           model.TaskItemStatusFailed,
					Message:          "daemon task record expired before completion",
				})
			}
		}
		return
	}

	current := make(map[string]string, len(task.Items))
	for _, item := range task.Items {
		current[item.UniqueIdentifier] = item.Status
	}
	for _, p := range snapshot {
		old, known := current[p.UniqueIdentifier]
		if !known {
			continue
		}
		if itemStatusRank[p.Status] <= itemStatusRank[old] && p.Status != old {
			continue // never move an item backwards
		}
		if p.Status == old && p.Message == "" {
			continue
		}
		s.applyItem(task, model.PluginInstallTaskItem{
			UniqueIdentifier: p.UniqueIdentifier,
			Status:           p.Status,
			Message:          p.Message,
			Icon:             p.Icon,
			Labels:           p.Labels,
		})
	}
}

func (s *PluginTaskService) applyItem(task *model.PluginInstallTask, item model.PluginInstallTaskItem) {
	if err := s.taskRepo.UpdateItem(task.TenantId, task.TaskID, item); err != nil {
		log.Errorw("[PluginTaskService] failed to apply progress",
			"taskId", task.TaskID, "item", item.UniqueIdentifier, "error", err)
	}
}
