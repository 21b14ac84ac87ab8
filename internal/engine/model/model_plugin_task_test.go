package model

import "testing"

func item(status string) PluginInstallTaskItem {
	return PluginInstallTaskItem{UniqueIdentifier: "acme/demo:1.0.0", Status: status}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name  string
		items []PluginInstallTaskItem
		want  string
	}{
		{"empty", nil, TaskStatusCompleted},
		{"all pending", []PluginInstallTaskItem{item(TaskItemStatusPending), item(TaskItemStatusPending)}, TaskStatusPending},
		{"one running", []PluginInstallTaskItem{item(TaskItemStatusPending), item(TaskItemStatusRunning)}, TaskStatusRunning},
		{"all success", []PluginInstallTaskItem{item(TaskItemStatusSuccess), item(TaskItemStatusSuccess)}, TaskStatusCompleted},
		{"all failed", []PluginInstallTaskItem{item(TaskItemStatusFailed), item(TaskItemStatusFailed)}, TaskStatusPartialFailure},
		{"mixed done", []PluginInstallTaskItem{item(TaskItemStatusSuccess), item(TaskItemStatusFailed)}, TaskStatusPartialFailure},
		{"failed but still running", []PluginInstallTaskItem{item(TaskItemStatusFailed), item(TaskItemStatusRunning)}, TaskStatusRunning},
		{"failed but still pending", []PluginInstallTaskItem{item(TaskItemStatusFailed), item(TaskItemStatusPending)}, TaskStatusRunning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &PluginInstallTask{Items: tc.items}
			if got := task.DeriveStatus(); got != tc.want {
				t.Fatalf("DeriveStatus() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDone(t *testing.T) {
	running := &PluginInstallTask{Items: []PluginInstallTaskItem{item(TaskItemStatusRunning)}}
	if running.Done() {
		t.Fatal("running task reported done")
	}
	finished := &PluginInstallTask{Items: []PluginInstallTaskItem{item(TaskItemStatusSuccess), item(TaskItemStatusFailed)}}
	if !finished.Done() {
		t.Fatal("finished task not reported done")
	}
}

func TestAllows(t *testing.T) {
	if !Allows(PermissionEveryone, "member") {
		t.Fatal("everyone should allow member")
	}
	if Allows(PermissionAdmins, "member") {
		t.Fatal("admins should not allow member")
	}
	if !Allows(PermissionAdmins, "owner") {
		t.Fatal("admins should allow owner")
	}
	if Allows(PermissionNoone, "owner") {
		t.Fatal("noone should not allow owner")
	}
}
