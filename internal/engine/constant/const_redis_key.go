package constant

// redis key 前缀
const (
	// UserInfoKey 登录会话 key 前缀
	UserInfoKey = "plugrail:user:"

	// PluginAssetKey 插件资源缓存 key 前缀
	PluginAssetKey = "plugrail:plugin:asset:"
)
