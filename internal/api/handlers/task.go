package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/board"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/httperr"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type taskPostBody struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectId"`
	ID        string `json:"id"`

	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"dueDate"`
	AssigneeID  *string `json:"assigneeId"`

	ToStatus   string   `json:"toStatus"`
	ToIndex    *int     `json:"toIndex"`
	OrderedIDs []string `json:"orderedIds"`
}

type taskPatchBody struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"dueDate"`
	AssigneeID  *string `json:"assigneeId"`
}

const taskSelect = `
    SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority,
           t.due_date, t.position, t.created_at, t.updated_at,
           a.id, a.email, a.name,
           cb.id, cb.email, cb.name
    FROM tasks t
    LEFT JOIN users a ON a.id = t.assignee_id
    LEFT JOIN users cb ON cb.id = t.created_by_id`

func scanTaskDTO(scan func(dest ...any) error, now time.Time) (models.TaskDTO, error) {
	var t models.Task
	var desc sql.NullString
	var due sql.NullTime
	var aID, aEmail, aName sql.NullString
	var cID, cEmail, cName sql.NullString

	err := scan(
		&t.ID, &t.ProjectID, &t.Title, &desc, &t.Status, &t.Priority,
		&due, &t.Position, &t.CreatedAt, &t.UpdatedAt,
		&aID, &aEmail, &aName,
		&cID, &cEmail, &cName,
	)
	if err != nil {
		return models.TaskDTO{}, err
	}

	if desc.Valid {
		t.Description = &desc.String
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}

	var assignee, createdBy *models.UserRef
	if aID.Valid {
		assignee = &models.UserRef{ID: aID.String, Email: aEmail.String, Name: aName.String}
	}
	if cID.Valid {
		createdBy = &models.UserRef{ID: cID.String, Email: cEmail.String, Name: cName.String}
	}

	return t.DTO(assignee, createdBy, now), nil
}

func (h *Handler) getTaskDTO(id string) (models.TaskDTO, error) {
	row := h.db.QueryRow(taskSelect+" WHERE t.id = ?", id)
	return scanTaskDTO(row.Scan, time.Now().UTC())
}

func (h *Handler) listTaskDTOs(where string, args ...any) ([]models.TaskDTO, error) {
	rows, err := h.db.Query(taskSelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now().UTC()
	out := []models.TaskDTO{}
	for rows.Next() {
		dto, err := scanTaskDTO(rows.Scan, now)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, rows.Err()
}

func (h *Handler) taskStats(projectID string) (map[models.TaskStatus]int, int, error) {
	byStatus := map[models.TaskStatus]int{
		models.StatusTodo:       0,
		models.StatusInProgress: 0,
		models.StatusReview:     0,
		models.StatusDone:       0,
	}

	rows, err := h.db.Query(
		"SELECT status, COUNT(*) FROM tasks WHERE project_id = ? GROUP BY status", projectID,
	)
	if err != nil {
		return nil, 0, err
	}
	for rows.Next() {
		var status models.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, 0, err
		}
		byStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var overdue int
	err = h.db.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE project_id = ? AND due_date < ? AND status != ?",
		projectID, time.Now().UTC(), models.StatusDone,
	).Scan(&overdue)
	if err != nil {
		return nil, 0, err
	}

	return byStatus, overdue, nil
}

// TaskGet godoc
// @Summary Board, list, stats or single task
// @Tags task
// @Produce json
// @Param projectId query string true "project id"
// @Param action query string false "one|stats|list|board (default board)"
// @Success 200 {object} object
// @Router /api/task [get]
func (h *Handler) TaskGet(c *gin.Context) {
	me := currentUser(c)

	action := c.Query("action")
	if action == "" {
		action = "board"
	}

	projectID := c.Query("projectId")
	if projectID == "" && action != "one" {
		projectID = c.Query("id")
	}
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}

	if _, err := h.projectRole(projectID, me.ID); err != nil {
		h.fail(c, err)
		return
	}

	switch action {
	case "one":
		id := c.Query("taskId")
		if id == "" {
			id = c.Query("id")
		}
		if id == "" {
			h.fail(c, httperr.BadRequest("Missing taskId"))
			return
		}

		dto, err := h.getTaskDTO(id)
		if err == sql.ErrNoRows || (err == nil && dto.ProjectID != projectID) {
			h.fail(c, httperr.NotFound("Task not found"))
			return
		} else if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, dto)

	case "stats":
		byStatus, overdue, err := h.taskStats(projectID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"projectId": projectID,
			"byStatus":  byStatus,
			"overdue":   overdue,
		})

	case "list":
		where := "WHERE t.project_id = ?"
		args := []any{projectID}

		if status := c.Query("status"); status != "" {
			where += " AND t.status = ?"
			args = append(args, status)
		}
		if assigneeID := c.Query("assigneeId"); assigneeID != "" {
			where += " AND t.assignee_id = ?"
			args = append(args, assigneeID)
		}
		if c.Query("overdue") == "1" {
			where += " AND t.due_date < ?"
			args = append(args, time.Now().UTC())
		}
		where += " ORDER BY t.status ASC, t.position ASC"

		tasks, err := h.listTaskDTOs(where, args...)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, tasks)

	default: // board
		tasks, err := h.listTaskDTOs(
			"WHERE t.project_id = ? ORDER BY t.status ASC, t.position ASC", projectID,
		)
		if err != nil {
			h.fail(c, err)
			return
		}

		columns := map[models.TaskStatus][]models.TaskDTO{}
		for _, status := range models.TaskStatuses {
			columns[status] = []models.TaskDTO{}
		}
		for _, t := range tasks {
			columns[t.Status] = append(columns[t.Status], t)
		}

		byStatus, overdue, err := h.taskStats(projectID)
		if err != nil {
			h.fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"projectId": projectID,
			"columns":   columns,
			"stats":     gin.H{"byStatus": byStatus, "overdue": overdue},
		})
	}
}

// TaskPost godoc
// @Summary Task actions
// @Tags task
// @Accept json
// @Produce json
// @Param request body object{action=string} true "action: create|move|bulk_reorder|delete"
// @Success 200 {object} object
// @Router /api/task [post]
func (h *Handler) TaskPost(c *gin.Context) {
	var body taskPostBody
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
		h.createTask(c, body)
	case "move":
		h.moveTask(c, body)
	case "bulk_reorder":
		h.bulkReorderTasks(c, body)
	case "delete":
		h.deleteTask(c, trim(body.ProjectID), trim(body.ID))
	default:
		h.fail(c, httperr.BadRequest("Unknown action"))
	}
}

func (h *Handler) createTask(c *gin.Context, body taskPostBody) {
	me := currentUser(c)

	projectID := trim(body.ProjectID)
	title := trim(body.Title)
	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if title == "" {
		h.fail(c, httperr.BadRequest("Missing title"))
		return
	}

	status := models.TaskStatus(body.Status)
	if body.Status == "" {
		status = models.StatusTodo
	}
	if !status.Valid() {
		h.fail(c, httperr.BadRequest("Invalid status"))
		return
	}

	priority := models.TaskPriority(body.Priority)
	if body.Priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		h.fail(c, httperr.BadRequest("Invalid priority"))
		return
	}

	if _, err := h.projectRole(projectID, me.ID); err != nil {
		h.fail(c, err)
		return
	}

	var assigneeID *string
	if body.AssigneeID != nil {
		if id := trim(*body.AssigneeID); id != "" {
			ok, err := h.isProjectParticipant(projectID, id)
			if err != nil {
				h.fail(c, err)
				return
			}
			if !ok {
				h.fail(c, httperr.BadRequest("Assignee is not in project"))
				return
			}
			assigneeID = &id
		}
	}

	var dueDate *time.Time
	if body.DueDate != nil && *body.DueDate != "" {
		parsed, err := time.Parse(time.RFC3339, *body.DueDate)
		if err != nil {
			h.fail(c, httperr.BadRequest("Invalid dueDate"))
			return
		}
		utc := parsed.UTC()
		dueDate = &utc
	}

	var description *string
	if d := trim(body.Description); d != "" {
		description = &d
	}

	max, err := board.MaxPosition(h.db, projectID, status)
	if err != nil {
		h.fail(c, err)
		return
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err = h.db.Exec(`
        INSERT INTO tasks (id, project_id, title, description, status, priority, due_date,
                           position, assignee_id, created_by_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, title, description, status, priority, dueDate,
		max+1, assigneeID, me.ID, now, now,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	dto, err := h.getTaskDTO(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *Handler) moveTask(c *gin.Context, body taskPostBody) {
	me := currentUser(c)

	projectID := trim(body.ProjectID)
	id := trim(body.ID)
	toStatus := models.TaskStatus(trim(body.ToStatus))

	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if id == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}
	if toStatus == "" {
		h.fail(c, httperr.BadRequest("Missing toStatus"))
		return
	}
	if !toStatus.Valid() {
		h.fail(c, httperr.BadRequest("Invalid toStatus"))
		return
	}

	toIndex := 0
	if body.ToIndex != nil {
		toIndex = *body.ToIndex
	}

	if _, err := h.projectRole(projectID, me.ID); err != nil {
		h.fail(c, err)
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := board.Move(tx, projectID, id, toStatus, toIndex); err != nil {
		tx.Rollback()
		if err == board.ErrTaskNotFound {
			h.fail(c, httperr.NotFound("Task not found"))
			return
		}
		h.fail(c, err)
		return
	}
	if _, err := tx.Exec("UPDATE tasks SET updated_at = ? WHERE id = ?", time.Now().UTC(), id); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}
	if err := tx.Commit(); err != nil {
		h.fail(c, err)
		return
	}

	dto, err := h.getTaskDTO(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *Handler) bulkReorderTasks(c *gin.Context, body taskPostBody) {
	me := currentUser(c)

	projectID := trim(body.ProjectID)
	status := models.TaskStatus(trim(body.Status))

	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if status == "" {
		h.fail(c, httperr.BadRequest("Missing status"))
		return
	}
	if len(body.OrderedIDs) == 0 {
		h.fail(c, httperr.BadRequest("Missing orderedIds"))
		return
	}

	if _, err := h.projectRole(projectID, me.ID); err != nil {
		h.fail(c, err)
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := board.BulkReorder(tx, projectID, status, body.OrderedIDs); err != nil {
		tx.Rollback()
		if err == board.ErrInvalidIDs {
			h.fail(c, httperr.BadRequest("orderedIds contains invalid task id"))
			return
		}
		h.fail(c, err)
		return
	}
	if err := tx.Commit(); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) deleteTask(c *gin.Context, projectID, id string) {
	me := currentUser(c)

	if projectID == "" {
		h.fail(c, httperr.BadRequest("Missing projectId"))
		return
	}
	if id == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	if _, err := h.projectRole(projectID, me.ID); err != nil {
		h.fail(c, err)
		return
	}

	var taskProject string
	var status models.TaskStatus
	err := h.db.QueryRow("SELECT project_id, status FROM tasks WHERE id = ?", id).Scan(&taskProject, &status)
	if err == sql.ErrNoRows || (err == nil && taskProject != projectID) {
		h.fail(c, httperr.NotFound("Task not found"))
		return
	} else if err != nil {
		h.fail(c, err)
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := tx.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}
	// Close the gap the deleted task left behind.
	if err := board.ReindexColumn(tx, projectID, status); err != nil {
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

// TaskPatch updates task fields. A status change appends the task to the
// end of the new column and reindexes the one it left; position is
// untouched otherwise.
func (h *Handler) TaskPatch(c *gin.Context) {
	me := currentUser(c)

	var body taskPatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	id := trim(body.ID)
	if id == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	var projectID string
	var currentStatus models.TaskStatus
	err := h.db.QueryRow("SELECT project_id, status FROM tasks WHERE id = ?", id).Scan(&projectID, &currentStatus)
	if err == sql.ErrNoRows {
		h.fail(c, httperr.NotFound("Task not found"))
		return
	} else if err != nil {
		h.fail(c, err)
		return
	}

	if _, err := h.projectRole(projectID, me.ID); err != nil {
		h.fail(c, err)
		return
	}

	sets := []string{}
	args := []any{}

	if body.Title != nil {
		if t := trim(*body.Title); t != "" {
			sets = append(sets, "title = ?")
			args = append(args, t)
		}
	}
	if body.Description != nil {
		var desc *string
		if d := trim(*body.Description); d != "" {
			desc = &d
		}
		sets = append(sets, "description = ?")
		args = append(args, desc)
	}
	if body.Priority != nil {
		priority := models.TaskPriority(*body.Priority)
		if !priority.Valid() {
			h.fail(c, httperr.BadRequest("Invalid priority"))
			return
		}
		sets = append(sets, "priority = ?")
		args = append(args, priority)
	}
	if body.DueDate != nil {
		var due *time.Time
		if *body.DueDate != "" {
			parsed, err := time.Parse(time.RFC3339, *body.DueDate)
			if err != nil {
				h.fail(c, httperr.BadRequest("Invalid dueDate"))
				return
			}
			utc := parsed.UTC()
			due = &utc
		}
		sets = append(sets, "due_date = ?")
		args = append(args, due)
	}
	if body.AssigneeID != nil {
		var assignee *string
		if a := trim(*body.AssigneeID); a != "" {
			ok, err := h.isProjectParticipant(projectID, a)
			if err != nil {
				h.fail(c, err)
				return
			}
			if !ok {
				h.fail(c, httperr.BadRequest("Assignee is not in project"))
				return
			}
			assignee = &a
		}
		sets = append(sets, "assignee_id = ?")
		args = append(args, assignee)
	}

	var newStatus *models.TaskStatus
	if body.Status != nil {
		status := models.TaskStatus(*body.Status)
		if !status.Valid() {
			h.fail(c, httperr.BadRequest("Invalid status"))
			return
		}
		if status != currentStatus {
			newStatus = &status
		}
	}

	tx, err := h.db.Begin()
	if err != nil {
		h.fail(c, err)
		return
	}

	if newStatus != nil {
		max, err := board.MaxPosition(tx, projectID, *newStatus)
		if err != nil {
			tx.Rollback()
			h.fail(c, err)
			return
		}
		sets = append(sets, "status = ?", "position = ?")
		args = append(args, *newStatus, max+1)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if _, err := tx.Exec(query, args...); err != nil {
		tx.Rollback()
		h.fail(c, err)
		return
	}

	if newStatus != nil {
		if err := board.ReindexColumn(tx, projectID, currentStatus); err != nil {
			tx.Rollback()
			h.fail(c, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.fail(c, err)
		return
	}

	dto, err := h.getTaskDTO(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// TaskDelete is the DELETE-method variant of the delete action.
func (h *Handler) TaskDelete(c *gin.Context) {
	h.deleteTask(c, trim(c.Query("projectId")), trim(c.Query("id")))
}
