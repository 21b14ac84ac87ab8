package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plugrail/plugrail/internal/engine/model"
	"github.com/plugrail/plugrail/internal/pkg/daemon"
)

func TestResolveDependencyRejectsUnknownType(t *testing.T) {
	s := &PluginService{}
	dep := daemon.BundleDependency{Type: "svn"}
	r := s.resolveDependency("t1", dep)
	assert.Error(t, r.err)
}

func TestResolveDependencyPackageNeedsIdentifier(t *testing.T) {
	s := &PluginService{}
	dep := daemon.BundleDependency{Type: "package"}
	r := s.resolveDependency("t1", dep)
	assert.Error(t, r.err)

	dep.Value.UniqueIdentifier = "acme/demo:1.0.0"
	r = s.resolveDependency("t1", dep)
	assert.NoError(t, r.err)
	assert.Equal(t, "acme/demo:1.0.0", r.uniqueIdentifier)
}

func TestMetaAtOutOfRange(t *testing.T) {
	metas := []daemon.InstallMeta{{Repo: "acme/demo"}}
	assert.Equal(t, "acme/demo", metaAt(metas, 0).Repo)
	assert.Equal(t, daemon.InstallMeta{}, metaAt(metas, 5))
}

func bundleDep(uid string) daemon.BundleDependency {
	dep := daemon.BundleDependency{Type: "package"}
	dep.Value.UniqueIdentifier = uid
	return dep
}

func TestInstallFromBundleFailedResolutionDoesNotBlockSiblings(t *testing.T) {
	store := newMemTaskStore()
	gw := &fakeGateway{installResp: &daemon.InstallResponse{TaskID: "d1"}}
	s := &PluginService{ctx: testCtx(), gateway: gw, taskRepo: store}

	deps := []daemon.BundleDependency{
		bundleDep("acme/one:1.0.0"),
		bundleDep(""), // 解析必然失败
		bundleDep("acme/three:1.0.0"),
	}
	task, err := s.InstallFromBundle("t1", deps)
	assert.NoError(t, err)
	assert.Equal(t, 3, task.TotalCount)
	assert.Len(t, task.Items, 3)
	assert.Equal(t, model.TaskItemStatusFailed, task.Items[1].Status)
	assert.NotEmpty(t, task.Items[1].Message)
	assert.Equal(t, model.TaskItemStatusPending, task.Items[0].Status)
	assert.Equal(t, model.TaskItemStatusPending, task.Items[2].Status)
	// 只有解析成功的两项提交给守护进程
	assert.Equal(t, [][]string{{"acme/one:1.0.0", "acme/three:1.0.0"}}, gw.installed)
}

func TestInstallFromBundleAllFailedSkipsDaemon(t *testing.T) {
	store := newMemTaskStore()
	gw := &fakeGateway{}
	s := &PluginService{ctx: testCtx(), gateway: gw, taskRepo: store}

	task, err := s.InstallFromBundle("t1", []daemon.BundleDependency{bundleDep(""), bundleDep("")})
	assert.NoError(t, err)
	assert.Equal(t, 2, task.TotalCount)
	assert.Equal(t, model.TaskStatusPartialFailure, task.Status)
	assert.Empty(t, gw.installed)
}

func TestInstallRollsBackTaskWhenDaemonFails(t *testing.T) {
	store := newMemTaskStore()
	gw := &fakeGateway{installErr: errors.New("daemon unavailable")}
	s := &PluginService{ctx: testCtx(), gateway: gw, taskRepo: store}

	_, err := s.InstallFromIdentifiers("t1", TaskSourcePackage, []string{"acme/demo:1.0.0"}, nil)
	assert.Error(t, err)
	_, total, err := store.ListTasks("t1", 1, 10)
	assert.NoError(t, err)
	assert.Zero(t, total)
}

func TestItemStatusRankMonotonic(t *testing.T) {
	// 终态不回退
	assert.Greater(t, itemStatusRank[model.TaskItemStatusSuccess], itemStatusRank[model.TaskItemStatusRunning])
	assert.Greater(t, itemStatusRank[model.TaskItemStatusFailed], itemStatusRank[model.TaskItemStatusRunning])
	assert.Greater(t, itemStatusRank[model.TaskItemStatusRunning], itemStatusRank[model.TaskItemStatusPending])
	assert.Equal(t, itemStatusRank[model.TaskItemStatusSuccess], itemStatusRank[model.TaskItemStatusFailed])
}
