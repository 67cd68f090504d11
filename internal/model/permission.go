package model

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleMember }

// Member — членство пользователя в workspace. Уникально по (workspace_id, user_id).
type Member struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *Member) IsAdmin() bool { return m != nil && m.Role == RoleAdmin }

// MemberWithUser — участник вместе с профилем пользователя.
type MemberWithUser struct {
	Member
	User User `json:"user"`
}
