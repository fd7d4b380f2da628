package handlers

import (
	"database/sql"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/httperr"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type projectPostBody struct {
	Action    string `json:"action"`
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`

	Name        string `json:"name"`
	Description string `json:"description"`

	Email        string `json:"email"`
	Token        string `json:"token"`
	InvitationID string `json:"invitationId"`

	MemberUserID string `json:"memberUserId"`
}

func (b projectPostBody) projectID() string {
	if id := trim(b.ProjectID); id != "" {
		return id
	}
	return trim(b.ID)
}

type projectPatchBody struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// ProjectPost godoc
// @Summary Project actions
// @Tags project
// @Accept json
// @Produce json
// @Param request body object{action=string} true "action: create|request_access|invite|accept_invite|decline_invite|approve_request|reject_request|revoke_invite|remove_member"
// @Success 200 {object} object
// @Router /api/project [post]
func (h *Handler) ProjectPost(c *gin.Context) {
	var body projectPostBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, httperr.BadRequest("Missing required fields"))
		return
	}

	action := body.Action
	if action == "" {
		action = "create"
	}

	switch action {
	case "create":
		h.createProject(c, body)
	case "request_access":
		h.requestAccess(c, body)
	case "invite":
		h.inviteToProject(c, body)
	case "accept_invite":
		h.acceptInvite(c, body)
	case "decline_invite":
		h.declineInvite(c, body)
	case "approve_request":
		h.approveRequest(c, body)
	case "reject_request":
		h.rejectRequest(c, body)
	case "revoke_invite":
		h.revokeInvite(c, body)
	case "remove_member":
		h.removeMember(c, body)
	default:
		h.fail(c, httperr.BadRequest("Unknown action"))
	}
}

func (h *Handler) createProject(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	name := trim(body.Name)
	if name == "" {
		h.fail(c, httperr.BadRequest("Missing name"))
		return
	}
	var description *string
	if d := trim(body.Description); d != "" {
		description = &d
	}

	now := time.Now().UTC()
	projectID := uuid.NewString()

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}

	_, err = tx.Exec(
		"INSERT INTO projects (id, name, description, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		projectID, name, description, me.ID, now, now,
	)
	if err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}

	// The owner always gets a materialized OWNER membership row.
	_, err = tx.Exec(
		"INSERT INTO project_members (id, project_id, user_id, role, joined_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), projectID, me.ID, models.RoleOwner, now,
	)
	if err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}

	if err := tx.Commit(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProjectSummary{
		ID:          projectID,
		Name:        name,
		Description: description,
		OwnerID:     me.ID,
		Owner:       models.UserRef{ID: me.ID, Email: me.Email, Name: me.Name},
		Role:        models.RoleOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// ProjectGet godoc
// @Summary Project listings and detail
// @Tags project
// @Produce json
// @Param scope query string false "my|other|invitations|invites"
// @Param id query string false "project id for detail"
// @Success 200 {object} object
// @Router /api/project [get]
func (h *Handler) ProjectGet(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		scope = c.Query("action")
	}

	switch scope {
	case "my":
		h.listMyProjects(c)
	case "other":
		h.listOtherProjects(c)
	case "invitations":
		h.listProjectInvitations(c)
	case "invites", "my_invites":
		h.listInviteFeed(c)
	default:
		h.projectDetail(c)
	}
}

func (h *Handler) scanProjectSummaries(rows *sql.Rows) ([]models.ProjectSummary, error) {
	defer rows.Close()

	var out []models.ProjectSummary
	for rows.Next() {
		var p models.ProjectSummary
		var desc sql.NullString
		if err := rows.Scan(
			&p.ID, &p.Name, &desc, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt,
			&p.Owner.ID, &p.Owner.Email, &p.Owner.Name,
		); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = &desc.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// attachTaskCounts loads total and overdue-not-done counts per project.
func (h *Handler) attachTaskCounts(projects []models.ProjectSummary) error {
	if len(projects) == 0 {
		return nil
	}

	ids := make([]any, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	readCounts := func(query string, args []any) (map[string]int, error) {
		rows, err := h.db.Query(query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		counts := make(map[string]int)
		for rows.Next() {
			var id string
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				return nil, err
			}
			counts[id] = n
		}
		return counts, rows.Err()
	}

	totals, err := readCounts(
		"SELECT project_id, COUNT(*) FROM tasks WHERE project_id IN ("+placeholders+") GROUP BY project_id",
		ids,
	)
	if err != nil {
		return err
	}

	hotArgs := append(append([]any{}, ids...), time.Now().UTC(), models.StatusDone)
	hots, err := readCounts(
		"SELECT project_id, COUNT(*) FROM tasks WHERE project_id IN ("+placeholders+") AND due_date < ? AND status != ? GROUP BY project_id",
		hotArgs,
	)
	if err != nil {
		return err
	}

	for i := range projects {
		projects[i].TasksCount = totals[projects[i].ID]
		projects[i].HotTasksCount = hots[projects[i].ID]
	}
	return nil
}

func (h *Handler) listMyProjects(c *gin.Context) {
	me := currentUser(c)

	rows, err := h.db.Query(`
        SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at,
               o.id, o.email, o.name
        FROM projects p
        JOIN users o ON o.id = p.owner_id
        WHERE p.owner_id = ?
           OR p.id IN (SELECT project_id FROM project_members WHERE user_id = ?)
        ORDER BY p.updated_at DESC`,
		me.ID, me.ID,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	projects, err := h.scanProjectSummaries(rows)
	if err != nil {
		h.fail(c, err)
		return
	}

	roleRows, err := h.db.Query(
		"SELECT project_id, role FROM project_members WHERE user_id = ?", me.ID,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	roles := make(map[string]models.Role)
	for roleRows.Next() {
		var id string
		var role models.Role
		if err := roleRows.Scan(&id, &role); err != nil {
			roleRows.Close()
			h.fail(c, err)
			return
		}
		roles[id] = role
	}
	roleRows.Close()

	for i := range projects {
		if projects[i].OwnerID == me.ID {
			projects[i].Role = models.RoleOwner
		} else {
			projects[i].Role = roles[projects[i].ID]
		}
	}

	if err := h.attachTaskCounts(projects); err != nil {
		h.fail(c, err)
		return
	}

	if projects == nil {
		projects = []models.ProjectSummary{}
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) listOtherProjects(c *gin.Context) {
	me := currentUser(c)

	rows, err := h.db.Query(`
        SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at,
               o.id, o.email, o.name
        FROM projects p
        JOIN users o ON o.id = p.owner_id
        WHERE p.owner_id != ?
          AND p.id NOT IN (SELECT project_id FROM project_members WHERE user_id = ?)
        ORDER BY p.updated_at DESC`,
		me.ID, me.ID,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	projects, err := h.scanProjectSummaries(rows)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.attachTaskCounts(projects); err != nil {
		h.fail(c, err)
		return
	}

	if projects == nil {
		projects = []models.ProjectSummary{}
	}
	c.JSON(http.StatusOK, projects)
}

// listProjectInvitations returns the full invitation history of one
// project, owner only.
func (h *Handler) listProjectInvitations(c *gin.Context) {
	me := currentUser(c)

	projectID := c.Query("projectId")
	if projectID == "" {
		projectID = c.Query("id")
	}
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
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

	rows, err := h.db.Query(`
        SELECT i.id, i.email, i.status, i.kind, i.token, i.created_at, i.responded_at,
               ib.id, ib.email, ib.name,
               ab.id, ab.email, ab.name
        FROM project_invitations i
        LEFT JOIN users ib ON ib.id = i.invited_by_id
        LEFT JOIN users ab ON ab.id = i.accepted_by_id
        WHERE i.project_id = ?
        ORDER BY i.created_at DESC`,
		projectID,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rows.Close()

	type invitationEntry struct {
		ID          string                  `json:"id"`
		Email       string                  `json:"email"`
		Status      models.InvitationStatus `json:"status"`
		Kind        models.InvitationKind   `json:"kind"`
		Token       string                  `json:"token"`
		CreatedAt   time.Time               `json:"createdAt"`
		RespondedAt *time.Time              `json:"respondedAt"`
		InvitedBy   *models.UserRef         `json:"invitedBy"`
		AcceptedBy  *models.UserRef         `json:"acceptedBy"`
	}

	out := []invitationEntry{}
	for rows.Next() {
		var e invitationEntry
		var responded sql.NullTime
		var ibID, ibEmail, ibName sql.NullString
		var abID, abEmail, abName sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Email, &e.Status, &e.Kind, &e.Token, &e.CreatedAt, &responded,
			&ibID, &ibEmail, &ibName,
			&abID, &abEmail, &abName,
		); err != nil {
			h.fail(c, err)
			return
		}
		if responded.Valid {
			e.RespondedAt = &responded.Time
		}
		if ibID.Valid {
			e.InvitedBy = &models.UserRef{ID: ibID.String, Email: ibEmail.String, Name: ibName.String}
		}
		if abID.Valid {
			e.AcceptedBy = &models.UserRef{ID: abID.String, Email: abEmail.String, Name: abName.String}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// listInviteFeed merges invitations addressed to the caller with access
// requests to projects the caller owns, newest first.
func (h *Handler) listInviteFeed(c *gin.Context) {
	me := currentUser(c)
	email := normalizeEmail(me.Email)

	finish := func(it *models.InviteFeedItem, desc sql.NullString, ibID, ibEmail, ibName sql.NullString) {
		if desc.Valid {
			it.ProjectDescription = &desc.String
		}
		if ibID.Valid {
			it.InvitedBy = &models.UserRef{ID: ibID.String, Email: ibEmail.String, Name: ibName.String}
		}
	}

	var items []models.InviteFeedItem

	inviteRows, err := h.db.Query(`
        SELECT i.id, i.token, i.created_at, p.id, p.name, p.description,
               ib.id, ib.email, ib.name
        FROM project_invitations i
        JOIN projects p ON p.id = i.project_id
        LEFT JOIN users ib ON ib.id = i.invited_by_id
        WHERE i.email = ? AND i.status = ? AND i.kind = ?
        ORDER BY i.created_at DESC`,
		email, models.InvitationPending, models.KindInvite,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	for inviteRows.Next() {
		var it models.InviteFeedItem
		var desc, ibID, ibEmail, ibName sql.NullString
		if err := inviteRows.Scan(&it.ID, &it.Token, &it.CreatedAt, &it.ProjectID, &it.ProjectName, &desc, &ibID, &ibEmail, &ibName); err != nil {
			inviteRows.Close()
			h.fail(c, err)
			return
		}
		it.Kind = models.KindInvite
		finish(&it, desc, ibID, ibEmail, ibName)
		items = append(items, it)
	}
	inviteRows.Close()
	if err := inviteRows.Err(); err != nil {
		h.fail(c, err)
		return
	}

	requestRows, err := h.db.Query(`
        SELECT i.id, i.created_at, p.id, p.name, p.description,
               ib.id, ib.email, ib.name
        FROM project_invitations i
        JOIN projects p ON p.id = i.project_id
        LEFT JOIN users ib ON ib.id = i.invited_by_id
        WHERE i.status = ? AND i.kind = ? AND p.owner_id = ?
        ORDER BY i.created_at DESC`,
		models.InvitationPending, models.KindRequest, me.ID,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	for requestRows.Next() {
		var it models.InviteFeedItem
		var desc, ibID, ibEmail, ibName sql.NullString
		if err := requestRows.Scan(&it.ID, &it.CreatedAt, &it.ProjectID, &it.ProjectName, &desc, &ibID, &ibEmail, &ibName); err != nil {
			requestRows.Close()
			h.fail(c, err)
			return
		}
		it.Kind = models.KindRequest
		finish(&it, desc, ibID, ibEmail, ibName)
		items = append(items, it)
	}
	requestRows.Close()
	if err := requestRows.Err(); err != nil {
		h.fail(c, err)
		return
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if items == nil {
		items = []models.InviteFeedItem{}
	}

	c.JSON(http.StatusOK, items)
}

func (h *Handler) projectDetail(c *gin.Context) {
	me := currentUser(c)

	id := c.Query("id")
	if id == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	role, err := h.projectRole(id, me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var p models.ProjectSummary
	var desc sql.NullString
	err = h.db.QueryRow(`
        SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at,
               o.id, o.email, o.name
        FROM projects p
        JOIN users o ON o.id = p.owner_id
        WHERE p.id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &desc, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt,
		&p.Owner.ID, &p.Owner.Email, &p.Owner.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if desc.Valid {
		p.Description = &desc.String
	}
	p.Role = role

	if err := h.db.QueryRow("SELECT COUNT(*) FROM tasks WHERE project_id = ?", id).Scan(&p.TasksCount); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.db.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE project_id = ? AND due_date < ? AND status != ?",
		id, time.Now().UTC(), models.StatusDone,
	).Scan(&p.HotTasksCount); err != nil {
		h.fail(c, err)
		return
	}

	memberRows, err := h.db.Query(`
        SELECT m.role, m.joined_at, u.id, u.email, u.name
        FROM project_members m
        JOIN users u ON u.id = m.user_id
        WHERE m.project_id = ?
        ORDER BY m.joined_at ASC`,
		id,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	members := []models.MemberEntry{}
	for memberRows.Next() {
		var m models.MemberEntry
		if err := memberRows.Scan(&m.Role, &m.JoinedAt, &m.User.ID, &m.User.Email, &m.User.Name); err != nil {
			memberRows.Close()
			h.fail(c, err)
			return
		}
		members = append(members, m)
	}
	memberRows.Close()
	if err := memberRows.Err(); err != nil {
		h.fail(c, err)
		return
	}

	type pendingInvitation struct {
		ID        string                  `json:"id"`
		Email     string                  `json:"email"`
		Status    models.InvitationStatus `json:"status"`
		Kind      models.InvitationKind   `json:"kind"`
		Token     string                  `json:"token"`
		CreatedAt time.Time               `json:"createdAt"`
	}
	invitations := []pendingInvitation{}

	// Pending invitations are owner-only information.
	if role == models.RoleOwner {
		invRows, err := h.db.Query(`
            SELECT id, email, status, kind, token, created_at
            FROM project_invitations
            WHERE project_id = ? AND status = ?
            ORDER BY created_at DESC`,
			id, models.InvitationPending,
		)
		if err != nil {
			h.fail(c, err)
			return
		}
		for invRows.Next() {
			var inv pendingInvitation
			if err := invRows.Scan(&inv.ID, &inv.Email, &inv.Status, &inv.Kind, &inv.Token, &inv.CreatedAt); err != nil {
				invRows.Close()
				h.fail(c, err)
				return
			}
			invitations = append(invitations, inv)
		}
		invRows.Close()
		if err := invRows.Err(); err != nil {
			h.fail(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"project":     p,
		"members":     members,
		"invitations": invitations,
	})
}

// ProjectPatch updates name/description, owner only.
func (h *Handler) ProjectPatch(c *gin.Context) {
	me := currentUser(c)

	var body projectPatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	projectID := trim(body.ID)
	if projectID == "" {
		projectID = c.Query("id")
	}
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	name := trim(body.Name)
	if name == "" && body.Description == nil {
		h.fail(c, httperr.BadRequest("Nothing to update"))
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

	if name != "" {
		if _, err := h.db.Exec(
			"UPDATE projects SET name = ?, updated_at = ? WHERE id = ?",
			name, time.Now().UTC(), projectID,
		); err != nil {
			h.fail(c, err)
			return
		}
	}
	if body.Description != nil {
		var desc *string
		if d := trim(*body.Description); d != "" {
			desc = &d
		}
		if _, err := h.db.Exec(
			"UPDATE projects SET description = ?, updated_at = ? WHERE id = ?",
			desc, time.Now().UTC(), projectID,
		); err != nil {
			h.fail(c, err)
			return
		}
	}

	var p models.Project
	var desc sql.NullString
	err = h.db.QueryRow(
		"SELECT id, name, description, owner_id, created_at, updated_at FROM projects WHERE id = ?",
		projectID,
	).Scan(&p.ID, &p.Name, &desc, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		h.fail(c, err)
		return
	}
	if desc.Valid {
		p.Description = &desc.String
	}

	c.JSON(http.StatusOK, p)
}

// ProjectDelete deletes a project (owner) or leaves it (member, ?leave=1).
func (h *Handler) ProjectDelete(c *gin.Context) {
	me := currentUser(c)

	projectID := trim(c.Query("id"))
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	leave := c.Query("leave") == "1" || c.Query("action") == "leave"

	role, err := h.projectRole(projectID, me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if leave {
		if role == models.RoleOwner {
			h.fail(c, httperr.Conflict("Owner cannot leave"))
			return
		}
		if _, err := h.db.Exec(
			"DELETE FROM project_members WHERE project_id = ? AND user_id = ?",
			projectID, me.ID,
		); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if role != models.RoleOwner {
		h.fail(c, httperr.Forbidden())
		return
	}

	if _, err := h.db.Exec("DELETE FROM projects WHERE id = ?", projectID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) removeMember(c *gin.Context, body projectPostBody) {
	me := currentUser(c)

	projectID := body.projectID()
	memberUserID := trim(body.MemberUserID)
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if memberUserID == "" {
		h.fail(c, httperr.BadRequest("Missing memberUserId"))
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

	var ownerID string
	if err := h.db.QueryRow("SELECT owner_id FROM projects WHERE id = ?", projectID).Scan(&ownerID); err != nil {
		h.fail(c, err)
		return
	}
	if memberUserID == ownerID {
		h.fail(c, httperr.Conflict("Cannot remove owner"))
		return
	}

	res, err := h.db.Exec(
		"DELETE FROM project_members WHERE project_id = ? AND user_id = ?",
		projectID, memberUserID,
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		h.fail(c, httperr.NotFound("User not found"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
