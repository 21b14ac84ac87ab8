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

package model

import "time"

// CollPluginInstallTask mongo集合名
const CollPluginInstallTask = "c_plugin_install_task"

// 安装任务项状态
const (
	TaskItemStatusPending = "pending"
	TaskItemStatusRunning = "running"
	TaskItemStatusSuccess = "success"
	TaskItemStatusFailed  = "failed"
)

// 安装任务聚合状态
const (
	TaskStatusPending        = "pending"
	TaskStatusRunning        = "running"
	TaskStatusCompleted      = "completed"
	TaskStatusPartialFailure = "partial_failure"
)

// PluginInstallTaskItem 任务中一个插件的安装进度
type PluginInstallTaskItem struct {
	UniqueIdentifier string    `bson:"unique_identifier" json:"uniqueIdentifier"`
	PluginId         string    `bson:"plugin_id" json:"pluginId"`
	Status           string    `bson:"status" json:"status"`
	Message          string    `bson:"message,omitempty" json:"message,omitempty"` // 失败原因，成功后不清除历史错误
	Icon             string    `bson:"icon,omitempty" json:"icon,omitempty"`
	Labels           any       `bson:"labels,omitempty" json:"labels,omitempty"`
	UpdateTime       time.Time `bson:"update_time" json:"updateTime"`
}

// PluginInstallTask 插件批量安装任务
type PluginInstallTask struct {
	TaskID        string                  `bson:"task_id" json:"taskId"`
	TenantId      string                  `bson:"tenant_id" json:"tenantId"`
	DaemonTaskID  string                  `bson:"daemon_task_id,omitempty" json:"-"` // 守护进程侧任务ID，轮询用
	Source        string                  `bson:"source" json:"source"`              // package/github/marketplace/bundle
	Status        string                  `bson:"status" json:"status"`
	Items         []PluginInstallTaskItem `bson:"items" json:"plugins"`
	TotalCount    int                     `bson:"total_count" json:"totalCount"`
	CreateTime    time.Time               `bson:"create_time" json:"createTime"`
	UpdateTime    time.Time               `bson:"update_time" json:"updateTime"`
	CompletedTime *time.Time              `bson:"completed_time,omitempty" json:"completedTime,omitempty"`
}

// DeriveStatus 由任务项推导聚合状态。completed 要求全部成功；
// partial_failure 要求至少一项失败且无未结束项。
func (t *PluginInstallTask) DeriveStatus() string {
	if len(t.Items) == 0 {
		return TaskStatusCompleted
	}
	var failed, success, running int
	for _, it := range t.Items {
		switch it.Status {
		case TaskItemStatusFailed:
			failed++
		case TaskItemStatusSuccess:
			success++
		case TaskItemStatusRunning:
			running++
		}
	}
	switch {
	case success == len(t.Items):
		return TaskStatusCompleted
	case failed > 0 && failed+success == len(t.Items):
		return TaskStatusPartialFailure
	case running > 0 || success > 0 || failed > 0:
		return TaskStatusRunning
	default:
		return TaskStatusPending
	}
}

// Done reports whether no item can still make progress.
func (t *PluginInstallTask) Done() bool {
	s := t.DeriveStatus()
	return s == TaskStatusCompleted || s == TaskStatusPartialFailure
}
