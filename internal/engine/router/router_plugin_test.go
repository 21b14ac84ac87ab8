package router

import (
	"encoding/json"
	"testing"

	"github.com/plugrail/plugrail/internal/pkg/daemon"
)

func TestPluginListDetailFieldNames(t *testing.T) {
	b, err := json.Marshal(pluginListDetail{Plugins: []daemon.Installation{}, Total: 0})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"plugins":[],"total":0}`
	if string(b) != want {
		t.Errorf("list detail = %s, want %s", b, want)
	}
}
