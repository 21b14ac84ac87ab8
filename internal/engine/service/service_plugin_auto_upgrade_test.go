package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plugrail/plugrail/internal/engine/model"
)

func strategy(setting, mode string, excluded, included []string) *model.PluginAutoUpgradeStrategy {
	return &model.PluginAutoUpgradeStrategy{
		TenantId:        "t1",
		StrategySetting: setting,
		UpgradeMode:     mode,
		ExcludedPlugins: mustJSONList(excluded),
		IncludedPlugins: mustJSONList(included),
	}
}

func TestShouldAutoUpgradeDisabled(t *testing.T) {
	s := strategy(model.UpgradeStrategyDisabled, model.UpgradeModeAll, nil, nil)
	assert.False(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.0", "2.0.0"))
	assert.False(t, ShouldAutoUpgrade(nil, "acme/demo", "1.0.0", "2.0.0"))
}

func TestShouldAutoUpgradeAll(t *testing.T) {
	s := strategy(model.UpgradeStrategyAll, model.UpgradeModeAll, nil, nil)
	assert.True(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.0", "1.0.1"))
	assert.True(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.0", "2.0.0"))
	// 同版本和降级都不触发
	assert.False(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.0", "1.0.0"))
	assert.False(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.1", "1.0.0"))
}

func TestShouldAutoUpgradeFixOnly(t *testing.T) {
	s := strategy(model.UpgradeStrategyFixOnly, model.UpgradeModeAll, nil, nil)
	assert.True(t, ShouldAutoUpgrade(s, "acme/demo", "1.2.3", "1.2.4"))
	assert.False(t, ShouldAutoUpgrade(s, "acme/demo", "1.2.3", "1.3.0"))
	assert.False(t, ShouldAutoUpgrade(s, "acme/demo", "1.2.3", "2.0.0"))
}

func TestShouldAutoUpgradeExcluded(t *testing.T) {
	s := strategy(model.UpgradeStrategyAll, model.UpgradeModeExclude, []string{"acme/demo"}, nil)
	assert.False(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.0", "2.0.0"))
	assert.True(t, ShouldAutoUpgrade(s, "acme/other", "1.0.0", "2.0.0"))
}

func TestShouldAutoUpgradeIncludeMode(t *testing.T) {
	s := strategy(model.UpgradeStrategyAll, model.UpgradeModeInclude, nil, []string{"acme/demo"})
	assert.True(t, ShouldAutoUpgrade(s, "acme/demo", "1.0.0", "1.1.0"))
	assert.False(t, ShouldAutoUpgrade(s, "acme/other", "1.0.0", "1.1.0"))
}

func TestChangeStrategyTimeOfDayBounds(t *testing.T) {
	s := &PluginAutoUpgradeService{strategyRepo: &memStrategyStore{}}
	// 当日分钟数，合法范围0-1439
	assert.ErrorIs(t, s.ChangeStrategy("t1", model.UpgradeStrategyAll, -1, model.UpgradeModeExclude, nil, nil), ErrInvalidStrategy)
	assert.ErrorIs(t, s.ChangeStrategy("t1", model.UpgradeStrategyAll, 1440, model.UpgradeModeExclude, nil, nil), ErrInvalidStrategy)
	assert.ErrorIs(t, s.ChangeStrategy("t1", model.UpgradeStrategyAll, 5000, model.UpgradeModeExclude, nil, nil), ErrInvalidStrategy)
	assert.NoError(t, s.ChangeStrategy("t1", model.UpgradeStrategyAll, 0, model.UpgradeModeExclude, nil, nil))
	assert.NoError(t, s.ChangeStrategy("t1", model.UpgradeStrategyAll, 1439, model.UpgradeModeExclude, nil, nil))
}

func TestExcludePluginIdempotent(t *testing.T) {
	store := &memStrategyStore{}
	s := &PluginAutoUpgradeService{strategyRepo: store}

	assert.NoError(t, s.ExcludePlugin("t1", "acme/demo"))
	assert.NoError(t, s.ExcludePlugin("t1", "acme/demo"))
	assert.Equal(t, []string{"acme/demo"}, jsonList(store.strategy.ExcludedPlugins))
}

func TestExcludePluginFlipsIncludeMode(t *testing.T) {
	store := &memStrategyStore{strategy: &model.PluginAutoUpgradeStrategy{
		TenantId:        "t1",
		StrategySetting: model.UpgradeStrategyAll,
		UpgradeMode:     model.UpgradeModeInclude,
		IncludedPlugins: mustJSONList([]string{"acme/demo", "acme/other"}),
	}}
	s := &PluginAutoUpgradeService{strategyRepo: store}

	assert.NoError(t, s.ExcludePlugin("t1", "acme/demo"))
	assert.Equal(t, model.UpgradeModeExclude, store.strategy.UpgradeMode)
	assert.Equal(t, []string{"acme/demo"}, jsonList(store.strategy.ExcludedPlugins))

	// 再次排除同一插件不产生重复
	assert.NoError(t, s.ExcludePlugin("t1", "acme/demo"))
	assert.Equal(t, []string{"acme/demo"}, jsonList(store.strategy.ExcludedPlugins))
}

func TestGetStrategyDetailContractFields(t *testing.T) {
	s := &PluginAutoUpgradeService{strategyRepo: &memStrategyStore{}}
	detail, err := s.GetStrategyDetail("t1")
	assert.NoError(t, err)

	b, err := json.Marshal(detail)
	assert.NoError(t, err)
	for _, field := range []string{"strategy_setting", "upgrade_time_of_day", "upgrade_mode", "exclude_plugins", "include_plugins"} {
		assert.Contains(t, string(b), `"`+field+`"`)
	}
	// 空列表序列化为[]而非null
	assert.NotContains(t, string(b), "null")
}

func TestJSONListRoundTrip(t *testing.T) {
	assert.Nil(t, jsonList(nil))
	assert.Equal(t, []string{"a/b", "c/d"}, jsonList(mustJSONList([]string{"a/b", "c/d"})))
	// 空列表落库为[]而非null
	assert.Equal(t, "[]", string(mustJSONList(nil)))
}
