package service

import (
	"context"
	"sync"
	"time"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/pkg/ctx"
)

func testCtx() *ctx.Context {
	return &ctx.Context{Ctx: context.Background()}
}

// memTaskStore 内存任务存储，删除与状态推导语义与mongo版一致
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*model.PluginInstallTask
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*model.PluginInstallTask)}
}

func taskKey(tenantId, taskID string) string { return tenantId + "/" + taskID }

func (m *memTaskStore) CreateTask(task *model.PluginInstallTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	task.CreateTime = now
	task.UpdateTime = now
	task.TotalCount = len(task.Items)
	task.Status = task.DeriveStatus()
	m.tasks[taskKey(task.TenantId, task.TaskID)] = task
	return nil
}

func (m *memTaskStore) GetTask(tenantId, taskID string) (*model.PluginInstallTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskKey(tenantId, taskID)]
	if !ok {
		return nil, repo.ErrTaskNotFound
	}
	return task, nil
}

func (m *memTaskStore) ListTasks(tenantId string, page, pageSize int) ([]*model.PluginInstallTask, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []*model.PluginInstallTask
	for _, t := range m.tasks {
		if t.TenantId == tenantId {
			tasks = append(tasks, t)
		}
	}
	return tasks, int64(len(tasks)), nil
}

func (m *memTaskStore) ListActiveTasks(limit int) ([]*model.PluginInstallTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []*model.PluginInstallTask
	for _, t := range m.tasks {
		if t.Status == model.TaskStatusPending || t.Status == model.TaskStatusRunning {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (m *memTaskStore) AttachDaemonTask(tenantId, taskID, daemonTaskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskKey(tenantId, taskID)]
	if !ok {
		return repo.ErrTaskNotFound
	}
	task.DaemonTaskID = daemonTaskID
	task.UpdateTime = time.Now()
	return nil
}

func (m *memTaskStore) UpdateItem(tenantId, taskID string, item model.PluginInstallTaskItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskKey(tenantId, taskID)]
	if !ok {
		return repo.ErrTaskNotFound
	}
	for i := range task.Items {
		if task.Items[i].UniqueIdentifier != item.UniqueIdentifier {
			continue
		}
		task.Items[i].Status = item.Status
		if item.Message != "" {
			task.Items[i].Message = item.Message
		}
		task.Items[i].UpdateTime = time.Now()
		task.Status = task.DeriveStatus()
		return nil
	}
	return repo.ErrTaskNotFound
}

func (m *memTaskStore) DeleteTask(tenantId, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := taskKey(tenantId, taskID)
	_, ok := m.tasks[k]
	delete(m.tasks, k)
	return ok, nil
}

func (m *memTaskStore) DeleteAllTasks(tenantId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tasks {
		if t.TenantId == tenantId {
			delete(m.tasks, k)
			n++
		}
	}
	return n, nil
}

func (m *memTaskStore) DeleteTaskItem(tenantId, taskID, uniqueIdentifier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskKey(tenantId, taskID)]
	if !ok {
		return false, nil
	}
	kept := make([]model.PluginInstallTaskItem, 0, len(task.Items))
	removed := false
	for _, it := range task.Items {
		if it.UniqueIdentifier == uniqueIdentifier {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	if !removed {
		return false, nil
	}
	if len(kept) == 0 {
		delete(m.tasks, taskKey(tenantId, taskID))
		return true, nil
	}
	task.Items = kept
	task.Status = task.DeriveStatus()
	return true, nil
}

// memStrategyStore 内存策略存储
type memStrategyStore struct {
	strategy *model.PluginAutoUpgradeStrategy
}

func (m *memStrategyStore) GetStrategy(tenantId string) (*model.PluginAutoUpgradeStrategy, error) {
	return m.strategy, nil
}

func (m *memStrategyStore) SetStrategy(strategy *model.PluginAutoUpgradeStrategy) error {
	m.strategy = strategy
	return nil
}

// fakeGateway 只实现测试路径需要的方法
type fakeGateway struct {
	daemon.Gateway

	installResp *daemon.InstallResponse
	installErr  error
	installed   [][]string

	progress    []daemon.ItemProgress
	progressErr error
}

func (f *fakeGateway) InstallFromIdentifiers(_ context.Context, _ string, uniqueIdentifiers []string, _ string, _ []daemon.InstallMeta) (*daemon.InstallResponse, error) {
	f.installed = append(f.installed, uniqueIdentifiers)
	if f.installErr != nil {
		return nil, f.installErr
	}
	return f.installResp, nil
}

func (f *fakeGateway) PollProgress(_ context.Context, _, _ string) ([]daemon.ItemProgress, error) {
	return f.progress, f.progressErr
}
