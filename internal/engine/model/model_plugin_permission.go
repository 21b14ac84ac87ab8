package model

/**
 * @file: model_plugin_permission.go
 * @description: tenant plugin permission policy
 */

// 权限档位
const (
	PermissionEveryone = "everyone"
	PermissionAdmins   = "admins"
	PermissionNoone    = "noone"
)

// PluginPermission 租户插件权限策略，每租户至多一行
type PluginPermission struct {
	BaseModel
	TenantId        string `gorm:"column:tenant_id;uniqueIndex" json:"tenantId"`
	InstallPermission string `gorm:"column:install_permission;default:everyone" json:"installPermission"` // everyone/admins/noone
	DebugPermission   string `gorm:"column:debug_permission;default:everyone" json:"debugPermission"`     // everyone/admins/noone
}

func (PluginPermission) TableName() string {
	return "t_plugin_permission"
}

// ValidPermission 校验权限档位取值
func ValidPermission(v string) bool {
	switch v {
	case PermissionEveryone, PermissionAdmins, PermissionNoone:
		return true
	}
	return false
}

// Allows 判断角色是否满足权限档位。owner/admin 视为管理员。
func Allows(permission, role string) bool {
	switch permission {
	case PermissionEveryone:
		return true
	case PermissionAdmins:
		return role == "admin" || role == "owner"
	default:
		return false
	}
}
