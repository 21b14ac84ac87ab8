package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/pkg/pluginid"
)

func TestUpgradeRejectsDifferentPlugin(t *testing.T) {
	s := &PluginUpgradeService{}
	_, err := s.upgrade("t1", "acme/demo:1.0.0", "acme/other:2.0.0", TaskSourceMarketplace, daemon.InstallMeta{})
	assert.ErrorIs(t, err, ErrDifferentPlugin)

	// @version shorthand goes through the same check
	_, err = s.upgrade("t1", "acme/foo@1.0.0", "acme/bar@1.0.0", TaskSourceMarketplace, daemon.InstallMeta{})
	assert.ErrorIs(t, err, ErrDifferentPlugin)
}

func TestUpgradeRejectsMalformedIdentifiers(t *testing.T) {
	s := &PluginUpgradeService{}
	_, err := s.upgrade("t1", "no-vendor:1.0.0", "acme/demo:2.0.0", TaskSourceMarketplace, daemon.InstallMeta{})
	assert.ErrorIs(t, err, pluginid.ErrInvalidIdentifier)

	_, err = s.upgrade("t1", "acme/demo:1.0.0", "garbage", TaskSourceMarketplace, daemon.InstallMeta{})
	assert.ErrorIs(t, err, pluginid.ErrInvalidIdentifier)
}
