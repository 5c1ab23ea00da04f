package auth

import (
	"context"

	"github.com/sprintdeck/sprintdeck/pkg/errors"
	"github.com/sprintdeck/sprintdeck/pkg/logging"
)

// Role identifiers used across Sprintdeck workspaces
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Permission strings understood by the gateway and the admin API
const (
	PermissionBreakerManage = "circuit-breaker:manage"
	PermissionBreakerRead   = "circuit-breaker:read"
	PermissionAuditRead     = "audit:read"
)

// DefaultRolePermissions is the built-in role to permission mapping used
// when no database-backed mapping is configured
var DefaultRolePermissions = map[string][]string{
	RoleOwner: {
		PermissionBreakerManage,
		PermissionBreakerRead,
		PermissionAuditRead,
	},
	RoleAdmin: {
		PermissionBreakerManage,
		PermissionBreakerRead,
		PermissionAuditRead,
	},
	RoleMember: {
		PermissionBreakerRead,
	},
	RoleViewer: {
		PermissionBreakerRead,
	},
}

// StaticChecker resolves role permissions from an in-memory mapping. It
// implements gateway.PermissionChecker and is the default when the
// deployment has no role_permissions table.
type StaticChecker struct {
	roles map[string][]string
}

// NewStaticChecker creates a checker over the given mapping, falling back
// to DefaultRolePermissions when nil
func NewStaticChecker(roles map[string][]string) *StaticChecker {
	if roles == nil {
		roles = DefaultRolePermissions
	}
	return &StaticChecker{roles: roles}
}

// RolePermissions returns the permissions granted to a role. An unknown
// role has no permissions; that is a denial, not an error.
func (c *StaticChecker) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	if roleID == "" {
		return nil, nil
	}

	permissions, ok := c.roles[roleID]
	if !ok {
		return nil, nil
	}

	// Copy so callers cannot mutate the mapping
	out := make([]string, len(permissions))
	copy(out, permissions)
	return out, nil
}

// permissionQuerier is the subset of sqlx.DB the Postgres checker needs
type permissionQuerier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// PostgresChecker resolves role permissions from the role_permissions
// table so workspace admins can grant or revoke access without a deploy.
// Lookup failures surface as errors; the gateway refuses overrides rather
// than guessing.
type PostgresChecker struct {
	db     permissionQuerier
	logger *logging.Logger
}

// NewPostgresChecker creates a database-backed permission checker
func NewPostgresChecker(db permissionQuerier, logger *logging.Logger) *PostgresChecker {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &PostgresChecker{
		db:     db,
		logger: logger,
	}
}

const rolePermissionsQuery = `
	SELECT permission
	FROM role_permissions
	WHERE role_id = $1
	ORDER BY permission`

// RolePermissions returns the permissions stored for a role. An empty
// result set means the role exists without grants or does not exist at
// all; both are denials, not errors.
func (c *PostgresChecker) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	if roleID == "" {
		return nil, nil
	}

	permissions := []string{}
	if err := c.db.SelectContext(ctx, &permissions, rolePermissionsQuery, roleID); err != nil {
		return nil, errors.NewInternalError("failed to query role permissions").WithCause(err)
	}
	return permissions, nil
}
