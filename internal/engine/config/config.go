package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/plugrail/plugrail/internal/pkg/daemon"
	"github.com/plugrail/plugrail/internal/pkg/marketplace"
	"github.com/plugrail/plugrail/pkg/cache"
	"github.com/plugrail/plugrail/pkg/database"
	"github.com/plugrail/plugrail/pkg/http"
	"github.com/plugrail/plugrail/pkg/log"
)

// PluginConfig 插件编排相关开关
type PluginConfig struct {
	MaxPackageSize   int64 `mapstructure:"maxPackageSize"`   // 单个插件包上限，字节
	MaxBundleSize    int64 `mapstructure:"maxBundleSize"`    // 离线包上限，字节
	AssetCacheTTL    int   `mapstructure:"assetCacheTTL"`    // 图标缓存秒数
	AssetCacheMaxAge int   `mapstructure:"assetCacheMaxAge"` // 图标响应Cache-Control秒数
	PollInterval     int   `mapstructure:"pollInterval"`     // 进度轮询起始间隔，秒
	PollMaxInterval  int   `mapstructure:"pollMaxInterval"`  // 进度轮询最大间隔，秒
	ReconcileWorkers int   `mapstructure:"reconcileWorkers"` // 轮询工作协程数
	ReconcileBatch   int   `mapstructure:"reconcileBatch"`   // 单轮处理的任务数上限
}

func (p *PluginConfig) SetDefaults() {
	if p.MaxPackageSize <= 0 {
		p.MaxPackageSize = 50 << 20
	}
	if p.MaxBundleSize <= 0 {
		p.MaxBundleSize = 100 << 20
	}
	if p.AssetCacheTTL <= 0 {
		p.AssetCacheTTL = 600
	}
	if p.AssetCacheMaxAge <= 0 {
		p.AssetCacheMaxAge = 3600
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 2
	}
	if p.PollMaxInterval <= 0 {
		p.PollMaxInterval = 30
	}
	if p.ReconcileWorkers <= 0 {
		p.ReconcileWorkers = 8
	}
	if p.ReconcileBatch <= 0 {
		p.ReconcileBatch = 64
	}
}

type AppConfig struct {
	Log         log.Conf
	Http        http.Http
	Database    database.Database
	Redis       cache.Redis
	Daemon      daemon.Conf
	Marketplace marketplace.Conf
	Plugin      PluginConfig
}

var (
	cfg  AppConfig
	once sync.Once
)

func NewConf(confDir string) AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confDir)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
	})
	return cfg
}

// LoadConfigFile load config file
func LoadConfigFile(confDir string) (AppConfig, error) {

	config := viper.New()
	config.SetConfigFile(confDir)
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("The configuration changes, re -analyze the configuration file: %s", e.Name)
		if err := config.Unmarshal(&cfg); err != nil {
			_ = fmt.Errorf("failed to unmarshal configuration file: %v", err)
		}
	})
	if err := config.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	cfg.Plugin.SetDefaults()
	log.Infow("config file loaded",
		"path", confDir,
	)

	return cfg, nil
}
