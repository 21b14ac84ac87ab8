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

package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/pkg/ctx"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("plugin install task not found")

type PluginTaskRepo struct {
	ctx        *ctx.Context
	collection *mongo.Collection
}

func NewPluginTaskRepo(c *ctx.Context) *PluginTaskRepo {
	return &PluginTaskRepo{
		ctx:        c,
		collection: c.Mongo.GetCollection(model.CollPluginInstallTask),
	}
}

// CreateTask 创建任务
func (r *PluginTaskRepo) CreateTask(task *model.PluginInstallTask) error {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	now := time.Now()
	task.CreateTime = now
	task.UpdateTime = now
	task.TotalCount = len(task.Items)
	task.Status = task.DeriveStatus()

	if _, err := r.collection.InsertOne(mctx, task); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask 按租户和任务ID获取任务
func (r *PluginTaskRepo) GetTask(tenantId, taskID string) (*model.PluginInstallTask, error) {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	var task model.PluginInstallTask
	err := r.collection.FindOne(mctx, bson.M{"tenant_id": tenantId, "task_id": taskID}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListTasks 按创建时间倒序分页
func (r *PluginTaskRepo) ListTasks(tenantId string, page, pageSize int) ([]*model.PluginInstallTask, int64, error) {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	filter := bson.M{"tenant_id": tenantId}
	total, err := r.collection.CountDocuments(mctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "create_time", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.collection.Find(mctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer cursor.Close(mctx)

	var tasks []*model.PluginInstallTask
	if err := cursor.All(mctx, &tasks); err != nil {
		return nil, 0, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, total, nil
}

// ListActiveTasks 列出仍需轮询的任务
func (r *PluginTaskRepo) ListActiveTasks(limit int) ([]*model.PluginInstallTask, error) {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	filter := bson.M{"status": bson.M{"$in": []string{model.TaskStatusPending, model.TaskStatusRunning}}}
	opts := options.Find().
		SetSort(bson.D{{Key: "update_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(mctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer cursor.Close(mctx)

	var tasks []*model.PluginInstallTask
	if err := cursor.All(mctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode active tasks: %w", err)
	}
	return tasks, nil
}

// AttachDaemonTask 记录守护进程侧任务ID，供轮询关联
func (r *PluginTaskRepo) AttachDaemonTask(tenantId, taskID, daemonTaskID string) error {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	res, err := r.collection.UpdateOne(mctx,
		bson.M{"tenant_id": tenantId, "task_id": taskID},
		bson.M{"$set": bson.M{"daemon_task_id": daemonTaskID, "update_time": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to attach daemon task: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// UpdateItem 更新任务中单个插件的进度。空的新消息不覆盖已记录的失败原因。
func (r *PluginTaskRepo) UpdateItem(tenantId, taskID string, item model.PluginInstallTaskItem) error {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	now := time.Now()
	set := bson.M{
		"items.$.status":      item.Status,
		"items.$.update_time": now,
		"update_time":         now,
	}
	if item.Message != "" {
		set["items.$.message"] = item.Message
	}
	if item.Icon != "" {
		set["items.$.icon"] = item.Icon
	}
	if item.Labels != nil {
		set["items.$.labels"] = item.Labels
	}

	filter := bson.M{
		"tenant_id":               tenantId,
		"task_id":                 taskID,
		"items.unique_identifier": item.UniqueIdentifier,
	}
	res, err := r.collection.UpdateOne(mctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update task item: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTaskNotFound
	}
	return r.refreshStatus(mctx, tenantId, taskID)
}

// refreshStatus 重算聚合状态并落库
func (r *PluginTaskRepo) refreshStatus(mctx context.Context, tenantId, taskID string) error {
	var task model.PluginInstallTask
	err := r.collection.FindOne(mctx, bson.M{"tenant_id": tenantId, "task_id": taskID}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return fmt.Errorf("failed to reload task: %w", err)
	}

	status := task.DeriveStatus()
	set := bson.M{"status": status}
	if (status == model.TaskStatusCompleted || status == model.TaskStatusPartialFailure) && task.CompletedTime == nil {
		now := time.Now()
		set["completed_time"] = &now
	}
	_, err = r.collection.UpdateOne(mctx, bson.M{"tenant_id": tenantId, "task_id": taskID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to refresh task status: %w", err)
	}
	return nil
}

// DeleteTask 删除任务，幂等
func (r *PluginTaskRepo) DeleteTask(tenantId, taskID string) (bool, error) {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	res, err := r.collection.DeleteOne(mctx, bson.M{"tenant_id": tenantId, "task_id": taskID})
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// DeleteAllTasks 清空租户全部任务
func (r *PluginTaskRepo) DeleteAllTasks(tenantId string) (int64, error) {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 10*time.Second)
	defer cancel()

	res, err := r.collection.DeleteMany(mctx, bson.M{"tenant_id": tenantId})
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteTaskItem 从任务中移除一个插件项，幂等，返回本次是否真正删除。
// 最后一项移除后整个任务一并删除。
func (r *PluginTaskRepo) DeleteTaskItem(tenantId, taskID, uniqueIdentifier string) (bool, error) {
	mctx, cancel := context.WithTimeout(r.ctx.GetCtx(), 5*time.Second)
	defer cancel()

	filter := bson.M{"tenant_id": tenantId, "task_id": taskID}
	pull := bson.M{
		"$pull": bson.M{"items": bson.M{"unique_identifier": uniqueIdentifier}},
		"$set":  bson.M{"update_time": time.Now()},
	}
	withItem := bson.M{
		"tenant_id":               tenantId,
		"task_id":                 taskID,
		"items.unique_identifier": uniqueIdentifier,
	}
	res, err := r.collection.UpdateOne(mctx, withItem, pull)
	if err != nil {
		return false, fmt.Errorf("failed to delete task item: %w", err)
	}
	if res.MatchedCount == 0 {
		return false, nil
	}

	var task model.PluginInstallTask
	if err := r.collection.FindOne(mctx, filter).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return true, nil
		}
		return true, fmt.Errorf("failed to reload task: %w", err)
	}
	if len(task.Items) == 0 {
		if _, err := r.collection.DeleteOne(mctx, filter); err != nil {
			return true, fmt.Errorf("failed to delete drained task: %w", err)
		}
		return true, nil
	}
	return true, r.refreshStatus(mctx, tenantId, taskID)
}
