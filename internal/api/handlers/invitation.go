package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/auth"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/httperr"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type invitationRow struct {
	ID          string
	ProjectID   string
	Email       string
	Token       string
	Status      models.InvitationStatus
	Kind        models.InvitationKind
	InvitedByID *string
}

func (h *Handler) getInvitation(where string, arg any) (invitationRow, error) {
	var inv invitationRow
	var invitedBy sql.NullString
	err := h.db.QueryRow(
		"SELECT id, project_id, email, token, status, kind, invited_by_id FROM project_invitations WHERE "+where, arg,
	).Scan(&inv.ID, &inv.ProjectID, &inv.Email, &inv.Token, &inv.Status, &inv.Kind, &invitedBy)
	if err != nil {
		return inv, err
	}
	if invitedBy.Valid {
		inv.InvitedByID = &invitedBy.String
	}
	return inv, nil
}

// getInvitationForUserAction looks an invitation up by capability token or
// id and checks it is pending and addressed to the acting user's email.
func (h *Handler) getInvitationForUserAction(token, invitationID, userEmail string) (invitationRow, error) {
	var inv invitationRow
	var err error
	switch {
	case token != "":
		inv, err = h.getInvitation("token = ?", token)
	case invitationID != "":
		inv, err = h.getInvitation("id = ?", invitationID)
	default:
		return inv, httperr.BadRequest("Missing token or invitationId")
	}

	if err == sql.ErrNoRows {
		return inv, httperr.NotFound("Invitation not found")
	} else if err != nil {
		return inv, err
	}

	if inv.Status != models.InvitationPending {
		return inv, httperr.Conflict("Invitation not pending")
	}
	if normalizeEmail(inv.Email) != normalizeEmail(userEmail) {
		return inv, httperr.Forbidden()
	}
	return inv, nil
}

// getRequestForOwnerAction looks an access request up for approve/reject:
// pending, project owned by ownerID, and actually a request.
func (h *Handler) getRequestForOwnerAction(invitationID, ownerID string) (invitationRow, error) {
	var inv invitationRow
	if invitationID == "" {
		return inv, httperr.BadRequest("Missing invitationId")
	}

	inv, err := h.getInvitation("id = ?", invitationID)
	if err == sql.ErrNoRows {
		return inv, httperr.NotFound("Invitation not found")
	} else if err != nil {
		return inv, err
	}

	if inv.Status != models.InvitationPending {
		return inv, httperr.Conflict("Invitation not pending")
	}

	var projectOwner string
	if err := h.db.QueryRow("SELECT owner_id FROM projects WHERE id = ?", inv.ProjectID).Scan(&projectOwner); err != nil {
		return inv, err
	}
	if projectOwner != ownerID {
		return inv, httperr.Forbidden()
	}
	if inv.Kind != models.KindRequest || inv.InvitedByID == nil || *inv.InvitedByID == ownerID {
		return inv, httperr.Conflict("Not a request")
	}

	return inv, nil
}

// markInvitation applies a state transition guarded by the PENDING check;
// a concurrent transition that got there first surfaces as a conflict.
func markInvitation(q interface {
	Exec(query string, args ...any) (sql.Result, error)
}, id string, status models.InvitationStatus, acceptedBy *string) error {
	res, err := q.Exec(
		"UPDATE project_invitations SET status = ?, accepted_by_id = ?, responded_at = ? WHERE id = ? AND status = ?",
		status, acceptedBy, time.Now().UTC(), id, models.InvitationPending,
	)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return httperr.Conflict("Invitation not pending")
	}
	return nil
}

// upsertMember adds a MEMBER membership row if one does not exist yet, so
// a double-accept stays idempotent.
func upsertMember(tx *sql.Tx, projectID, userID string) error {
	var exists bool
	err := tx.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = ? AND user_id = ?)",
		projectID, userID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = tx.Exec(
		"INSERT INTO project_members (id, project_id, user_id, role, joined_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), projectID, userID, models.RoleMember, time.Now().UTC(),
	)
	return err
}

func (h *Handler) inviteToProject(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	projectID := body.projectID()
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if body.Email == "" {
		h.fail(c, httperr.BadRequest("Missing email"))
		return
	}
	email := normalizeEmail(body.Email)
	if !isValidEmail(email) {
		h.fail(c, httperr.BadRequest("Invalid email"))
		return
	}

	role, err := h.projectRole(projectID, me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if role != models.RoleOwner {
		h.fail(c, httperr.Forbidden())
		return
	}

	if email == normalizeEmail(me.Email) {
		h.fail(c, httperr.Conflict("Already a member"))
		return
	}

	var inviteeID string
	err = h.db.QueryRow("SELECT id FROM users WHERE email = ?", email).Scan(&inviteeID)
	if err != nil && err != sql.ErrNoRows {
		h.fail(c, err)
		return
	}
	if inviteeID != "" {
		member, err := h.isProjectParticipant(projectID, inviteeID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if member {
			h.fail(c, httperr.Conflict("Already a member"))
			return
		}
	}

	// Re-inviting rotates the capability token so a leaked link cannot
	// resurrect a stale invite.
	token := auth.RandomToken()
	now := time.Now().UTC()

	var existingID string
	err = h.db.QueryRow(
		"SELECT id FROM project_invitations WHERE project_id = ? AND email = ?",
		projectID, email,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		h.fail(c, err)
		return
	}

	invitationID := existingID
	if existingID != "" {
		_, err = h.db.Exec(`
            UPDATE project_invitations
            SET token = ?, status = ?, kind = ?, invited_by_id = ?, accepted_by_id = NULL, responded_at = NULL
            WHERE id = ?`,
			token, models.InvitationPending, models.KindInvite, me.ID, existingID,
		)
	} else {
		invitationID = uuid.NewString()
		_, err = h.db.Exec(`
            INSERT INTO project_invitations (id, project_id, email, token, status, kind, invited_by_id, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			invitationID, projectID, email, token, models.InvitationPending, models.KindInvite, me.ID, now,
		)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	var createdAt time.Time
	if err := h.db.QueryRow(
		"SELECT created_at FROM project_invitations WHERE id = ?", invitationID,
	).Scan(&createdAt); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        invitationID,
		"email":     email,
		"status":    models.InvitationPending,
		"kind":      models.KindInvite,
		"token":     token,
		"createdAt": createdAt,
	})
}

func (h *Handler) requestAccess(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	projectID := body.projectID()
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}

	var ownerID string
	err := h.db.QueryRow("SELECT owner_id FROM projects WHERE id = ?", projectID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		h.fail(c, httperr.NotFound("Project not found"))
		return
	} else if err != nil {
		h.fail(c, err)
		return
	}

	// Requesting access to your own project is a no-op.
	if ownerID == me.ID {
		c.JSON(http.StatusOK, gin.H{"ok": true, "role": models.RoleOwner})
		return
	}

	var memberRole models.Role
	err = h.db.QueryRow(
		"SELECT role FROM project_members WHERE project_id = ? AND user_id = ?",
		projectID, me.ID,
	).Scan(&memberRole)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "role": memberRole})
		return
	} else if err != sql.ErrNoRows {
		h.fail(c, err)
		return
	}

	email := normalizeEmail(me.Email)

	var existingID string
	var existingStatus models.InvitationStatus
	var existingKind models.InvitationKind
	err = h.db.QueryRow(
		"SELECT id, status, kind FROM project_invitations WHERE project_id = ? AND email = ?",
		projectID, email,
	).Scan(&existingID, &existingStatus, &existingKind)
	if err != nil && err != sql.ErrNoRows {
		h.fail(c, err)
		return
	}

	if existingID != "" {
		// A pending invitation from the owner already grants a faster path:
		// tell the caller instead of clobbering it.
		if existingStatus == models.InvitationPending && existingKind == models.KindInvite {
			c.JSON(http.StatusOK, gin.H{"ok": true, "status": "ALREADY_INVITED"})
			return
		}

		_, err = h.db.Exec(`
            UPDATE project_invitations
            SET token = ?, status = ?, kind = ?, invited_by_id = ?, accepted_by_id = NULL, responded_at = NULL
            WHERE id = ?`,
			auth.RandomToken(), models.InvitationPending, models.KindRequest, me.ID, existingID,
		)
		if err != nil {
			h.fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true, "status": models.InvitationPending})
		return
	}

	_, err = h.db.Exec(`
        INSERT INTO project_invitations (id, project_id, email, token, status, kind, invited_by_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), projectID, email, auth.RandomToken(),
		models.InvitationPending, models.KindRequest, me.ID, time.Now().UTC(),
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "status": models.InvitationPending})
}

func (h *Handler) acceptInvite(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	inv, err := h.getInvitationForUserAction(trim(body.Token), trim(body.InvitationID), me.Email)
	if err != nil {
		h.fail(c, err)
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := markInvitation(tx, inv.ID, models.InvitationAccepted, &me.ID); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}
	if err := upsertMember(tx, inv.ProjectID, me.ID); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}

	if err := tx.Commit(); err != nil {
		h.fail(c, err)
		return
	}

	var p models.Project
	var desc sql.NullString
	err = h.db.QueryRow(
		"SELECT id, name, description, owner_id, created_at, updated_at FROM projects WHERE id = ?",
		inv.ProjectID,
	).Scan(&p.ID, &p.Name, &desc, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		h.fail(c, httperr.NotFound("Project not found"))
		return
	} else if err != nil {
		h.fail(c, err)
		return
	}
	if desc.Valid {
		p.Description = &desc.String
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) declineInvite(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	inv, err := h.getInvitationForUserAction(trim(body.Token), trim(body.InvitationID), me.Email)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := markInvitation(h.db, inv.ID, models.InvitationDeclined, nil); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) approveRequest(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	inv, err := h.getRequestForOwnerAction(trim(body.InvitationID), me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := markInvitation(tx, inv.ID, models.InvitationAccepted, inv.InvitedByID); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}
	if err := upsertMember(tx, inv.ProjectID, *inv.InvitedByID); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}

	if err := tx.Commit(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) rejectRequest(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	inv, err := h.getRequestForOwnerAction(trim(body.InvitationID), me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := markInvitation(h.db, inv.ID, models.InvitationDeclined, nil); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) revokeInvite(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	projectID := body.projectID()
	invitationID := trim(body.InvitationID)
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if invitationID == "" {
		h.fail(c, httperr.BadRequest("Missing invitationId"))
		return
	}

	role, err := h.projectRole(projectID, me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if role != models.RoleOwner {
		h.fail(c, httperr.Forbidden())
		return
	}

	res, err := h.db.Exec(
		"UPDATE project_invitations SET status = ?, responded_at = ? WHERE id = ? AND project_id = ? AND status = ?",
		models.InvitationRevoked, time.Now().UTC(), invitationID, projectID, models.InvitationPending,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		h.fail(c, httperr.Conflict("Invitation not pending"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
