package handlers

import (
	"database/sql"
	"regexp"
	"strings"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/config"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/httperr"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	db  *sql.DB
	cfg *config.Config
	log *logrus.Logger
}

func NewHandler(db *sql.DB, cfg *config.Config, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{db: db, cfg: cfg, log: log}
}

// authedUser is the identity placed in the context by the auth middleware.
type authedUser struct {
	ID    string
	Email string
	Name  string
}

func currentUser(c *gin.Context) authedUser {
	return authedUser{
		ID:    c.GetString("user_id"),
		Email: c.GetString("user_email"),
		Name:  c.GetString("user_name"),
	}
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func trim(s string) string {
	return strings.TrimSpace(s)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// projectRole resolves the caller's role for a project. Missing project is
// NotFound; the check runs before authorization so absent resources read as
// 404, not 403. The owner is OWNER by ownerId match alone, membership row
// or not.
func (h *Handler) projectRole(projectID, userID string) (models.Role, error) {
	var ownerID string
	err := h.db.QueryRow("SELECT owner_id FROM projects WHERE id = ?", projectID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", httperr.NotFound("Project not found")
	} else if err != nil {
		return "", err
	}

	if ownerID == userID {
		return models.RoleOwner, nil
	}

	var role models.Role
	err = h.db.QueryRow(
		"SELECT role FROM project_members WHERE project_id = ? AND user_id = ?",
		projectID, userID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return "", httperr.Forbidden()
	} else if err != nil {
		return "", err
	}

	return role, nil
}

// isProjectParticipant reports whether userID is the project owner or holds
// a membership row. Used for assignee validation.
func (h *Handler) isProjectParticipant(projectID, userID string) (bool, error) {
	var ownerID string
	err := h.db.QueryRow("SELECT owner_id FROM projects WHERE id = ?", projectID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if ownerID == userID {
		return true, nil
	}

	var exists bool
	err = h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = ? AND user_id = ?)",
		projectID, userID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	if _, ok := err.(*httperr.Error); !ok {
		h.log.WithError(err).Error("request failed")
	}
	httperr.Abort(c, err)
}
