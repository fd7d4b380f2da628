package models

import "time"

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleMember Role = "MEMBER"
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ProjectMember struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// ProjectSummary is the listing shape for scope=my / scope=other.
type ProjectSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	OwnerID       string    `json:"ownerId"`
	Owner         UserRef   `json:"owner"`
	Role          Role      `json:"role,omitempty"`
	TasksCount    int       `json:"tasksCount"`
	HotTasksCount int       `json:"hotTasksCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MemberEntry is a row of the project detail members list.
type MemberEntry struct {
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	User     UserRef   `json:"user"`
}
