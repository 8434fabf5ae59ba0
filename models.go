package consoleauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminRole is the admin's console role
type AdminRole string

const (
	// RoleSuperAdmin has full control, including role management
	RoleSuperAdmin AdminRole = "SUPER_ADMIN"
	// RoleSystemAdmin manages system configuration and admins
	RoleSystemAdmin AdminRole = "SYSTEM_ADMIN"
	// RoleContentAdmin manages content surfaces
	RoleContentAdmin AdminRole = "CONTENT_ADMIN"
	// RoleSupportAdmin handles support workflows (read-mostly)
	RoleSupportAdmin AdminRole = "SUPPORT_ADMIN"
	// RoleWaiting is assigned on registration until an operator approves
	RoleWaiting AdminRole = "WAITING"
)

// AdminStatus is the admin's account status
type AdminStatus string

const (
	// StatusActive accounts may hold sessions
	StatusActive AdminStatus = "ACTIVE"
	// StatusInactive accounts are disabled without prejudice
	StatusInactive AdminStatus = "INACTIVE"
	// StatusSuspended accounts are blocked pending review
	StatusSuspended AdminStatus = "SUSPENDED"
)

// Admin is the console admin model
type Admin struct {
	bun.BaseModel  `bun:"table:admins,alias:adm"`
	ID             uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SubjectID      string      `bun:"subject_id,notnull,unique" json:"subject_id,omitempty"`
	Email          string      `bun:"email,notnull,unique" json:"email,omitempty"`
	Username       string      `bun:"username,notnull" json:"username,omitempty"`
	ProfilePicture string      `bun:"profile_picture" json:"profile_picture,omitempty"`
	Role           AdminRole   `bun:"admin_role,notnull" json:"admin_role,omitempty"`
	Status         AdminStatus `bun:"status,notnull" json:"status,omitempty"`
	LastLoginAt    *time.Time  `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt      *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value so legacy rows behave like active accounts.
func (a *Admin) EnsureStatus() {
	if a.Status == "" {
		a.Status = StatusActive
	}
}

// Record projects the persisted admin into the session-facing view.
func (a *Admin) Record() *AuthorizationRecord {
	if a == nil {
		return nil
	}
	a.EnsureStatus()
	return &AuthorizationRecord{
		SubjectID:   a.SubjectID,
		Email:       a.Email,
		DisplayName: a.Username,
		Role:        a.Role,
		Status:      a.Status,
	}
}

// AuthorizationRecord is the console's view of an authenticated admin. It is
// what the SessionStore holds while a session is live and what route guards
// consult; it never carries credentials.
type AuthorizationRecord struct {
	SubjectID   string      `json:"subject_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"username"`
	Role        AdminRole   `json:"role"`
	Status      AdminStatus `json:"status"`
}

// Authorized reports whether the record grants access to the protected area.
func (r *AuthorizationRecord) Authorized() bool {
	if r == nil {
		return false
	}
	return r.Role.IsValid() && r.Role != RoleWaiting
}

// Pending reports whether the record is parked in the approval queue.
func (r *AuthorizationRecord) Pending() bool {
	return r != nil && r.Role == RoleWaiting
}
