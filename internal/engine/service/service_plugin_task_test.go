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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/engine/repo"
)

func seedTask(store *memTaskStore, tenantId string, uids ...string) *model.PluginInstallTask {
	items := make([]model.PluginInstallTaskItem, 0, len(uids))
	for _, uid := range uids {
		items = append(items, model.PluginInstallTaskItem{
			UniqueIdentifier: uid,
			Status:           model.TaskItemStatusPending,
		})
	}
	task := &model.PluginInstallTask{TaskID: "task1", TenantId: tenantId, Items: items}
	_ = store.CreateTask(task)
	return task
}

func TestDeleteTaskIdempotent(t *testing.T) {
	store := newMemTaskStore()
	seedTask(store, "t1", "acme/demo:1.0.0")
	s := &PluginTaskService{taskRepo: store}

	ok, err := s.DeleteTask("t1", "task1")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteTask("t1", "task1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteTaskItemIdempotent(t *testing.T) {
	store := newMemTaskStore()
	seedTask(store, "t1", "acme/one:1.0.0", "acme/two:1.0.0")
	s := &PluginTaskService{taskRepo: store}

	ok, err := s.DeleteTaskItem("t1", "task1", "acme/one:1.0.0")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteTaskItem("t1", "task1", "acme/one:1.0.0")
	assert.NoError(t, err)
	assert.False(t, ok)

	// 最后一项删除后任务本身消失
	ok, err = s.DeleteTaskItem("t1", "task1", "acme/two:1.0.0")
	assert.NoError(t, err)
	assert.True(t, ok)
	_, err = s.GetTask("t1", "task1")
	assert.ErrorIs(t, err, repo.ErrTaskNotFound)
}

func TestReconcileFailsTaskNeverHandedToDaemon(t *testing.T) {
	store := newMemTaskStore()
	task := seedTask(store, "t1", "acme/demo:1.0.0")
	task.UpdateTime = time.Now().Add(-(daemonAttachGrace + time.Minute))

	s := &PluginTaskService{ctx: testCtx(), gateway: &fakeGateway{}, taskRepo: store}
	s.reconcileTask(task)

	got, err := s.GetTask("t1", "task1")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskItemStatusFailed, got.Items[0].Status)
	assert.Equal(t, model.TaskStatusPartialFailure, got.Status)
}

func TestReconcileSkipsRecentUnattachedTask(t *testing.T) {
	store := newMemTaskStore()
	task := seedTask(store, "t1", "acme/demo:1.0.0")

	s := &PluginTaskService{ctx: testCtx(), gateway: &fakeGateway{}, taskRepo: store}
	s.reconcileTask(task)

	got, err := s.GetTask("t1", "task1")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskItemStatusPending, got.Items[0].Status)
}
