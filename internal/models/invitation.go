package models

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
	InvitationRevoked  InvitationStatus = "REVOKED"
)

// InvitationKind disambiguates the two initiation paths that share the
// projectInvitations table: an owner inviting an email, or a user
// requesting access to a project.
type InvitationKind string

const (
	KindInvite  InvitationKind = "INVITE"
	KindRequest InvitationKind = "REQUEST"
)

type ProjectInvitation struct {
	ID           string           `json:"id"`
	ProjectID    string           `json:"projectId"`
	Email        string           `json:"email"`
	Token        string           `json:"token"`
	Status       InvitationStatus `json:"status"`
	Kind         InvitationKind   `json:"kind"`
	InvitedByID  *string          `json:"invitedById"`
	AcceptedByID *string          `json:"acceptedById"`
	CreatedAt    time.Time        `json:"createdAt"`
	RespondedAt  *time.Time       `json:"respondedAt"`
}

// InviteFeedItem is one entry of the scope=invites feed: either an
// invitation addressed to the current user, or an access request to one of
// their projects.
type InviteFeedItem struct {
	ID                 string         `json:"id"`
	Kind               InvitationKind `json:"kind"`
	Token              string         `json:"token,omitempty"`
	ProjectID          string         `json:"projectId"`
	ProjectName        string         `json:"projectName"`
	ProjectDescription *string        `json:"projectDescription"`
	InvitedBy          *UserRef       `json:"invitedBy"`
	CreatedAt          time.Time      `json:"createdAt"`
}
