package model

// Role represents user roles in the system
type Role struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Code        string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // MASTER_ADMIN, SUPERVISOR, OPERATOR
	Name        string      `gorm:"type:varchar(100)" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Privileges  []Privilege `gorm:"many2many:role_privileges;" json:"privileges,omitempty"`
}

// Role codes as constants
const (
	RoleMasterAdmin = "MASTER_ADMIN"
	RoleSupervisor  = "SUPERVISOR"
	RoleOperator    = "OPERATOR"
)

// DefaultRoles defines the default roles in the system
var DefaultRoles = []Role{
	{
		Code:        RoleMasterAdmin,
		Name:        "Master Administrator",
		Description: "Full system access with all privileges",
	},
	{
		Code:        RoleSupervisor,
		Name:        "Chamber Supervisor",
		Description: "Confirms withdrawals and manages chamber layout",
	},
	{
		Code:        RoleOperator,
		Name:        "Chamber Operator",
		Description: "Places, moves and requests withdrawal of seed lots",
	},
}

// DefaultRolePrivileges lists the privilege codes granted to each non-admin
// role. MASTER_ADMIN always receives every privilege. Requesting and
// confirming withdrawals are split between operator and supervisor.
var DefaultRolePrivileges = map[string][]string{
	RoleSupervisor: {
		"chamber:view", "chamber:manage", "seedtype:manage",
		"product:view", "movement:view", "movement:create",
		PrivWithdrawalConfirm,
	},
	RoleOperator: {
		"chamber:view", "product:view", "product:create", "product:place",
		"product:move", "product:exit", "product:adjust", "product:remove",
		"movement:view", PrivWithdrawalRequest,
	},
}
