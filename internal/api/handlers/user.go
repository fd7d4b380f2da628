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
	"golang.org/x/crypto/bcrypt"
)

type userPostBody struct {
	Action   string `json:"action"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`

	// Legacy test hook, honored only when ENVIRONMENT=test.
	Test bool `json:"__test"`
}

type userPatchBody struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

func (h *Handler) getUserByID(id string) (models.User, error) {
	var u models.User
	err := h.db.QueryRow(
		"SELECT id, email, name, password_hash, created_at, updated_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// UserPost godoc
// @Summary Register, login or logout
// @Tags user
// @Accept json
// @Produce json
// @Param request body object{action=string,email=string,name=string,password=string} true "action: register|login|logout"
// @Success 200 {object} object
// @Router /api/user [post]
func (h *Handler) UserPost(c *gin.Context) {
	var body userPostBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, httperr.BadRequest("Missing required fields"))
		return
	}

	if body.Test && h.cfg.Env == "test" {
		h.legacyTestCreateUser(c, body)
		return
	}

	action := body.Action
	if action == "" {
		action = "register"
	}

	switch action {
	case "register":
		h.register(c, body)
	case "login":
		h.login(c, body)
	case "logout":
		h.clearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	default:
		h.fail(c, httperr.BadRequest("Unknown action"))
	}
}

func (h *Handler) register(c *gin.Context, body userPostBody) {
	email := normalizeEmail(body.Email)
	name := trim(body.Name)
	password := body.Password

	if email == "" || name == "" || password == "" {
		h.fail(c, httperr.BadRequest("Missing required fields"))
		return
	}
	if !isValidEmail(email) {
		h.fail(c, httperr.BadRequest("Invalid email"))
		return
	}
	if len(password) < 8 {
		h.fail(c, httperr.BadRequest("Password must be at least 8 characters"))
		return
	}

	var exists bool
	if err := h.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", email).Scan(&exists); err != nil {
		h.fail(c, err)
		return
	}
	if exists {
		h.fail(c, httperr.Conflict("Email already exists"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(c, err)
		return
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = h.db.Exec(
		"INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, user.Public())
}

func (h *Handler) login(c *gin.Context, body userPostBody) {
	email := normalizeEmail(body.Email)
	password := body.Password

	if email == "" || password == "" {
		h.fail(c, httperr.BadRequest("Missing required fields"))
		return
	}

	var u models.User
	err := h.db.QueryRow(
		"SELECT id, email, name, password_hash, created_at, updated_at FROM users WHERE email = ?", email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		h.fail(c, httperr.New(http.StatusUnauthorized, "Invalid credentials"))
		return
	} else if err != nil {
		h.fail(c, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		h.fail(c, httperr.New(http.StatusUnauthorized, "Invalid credentials"))
		return
	}

	token, err := auth.SignToken(
		auth.Session{UserID: u.ID, Email: u.Email, Name: u.Name},
		h.cfg.Auth.Secret,
		h.cfg.Auth.TokenTTL,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"user": u.Public()})
}

// legacyTestCreateUser stores the password as-is so e2e fixtures can log in
// with known rows. Unreachable outside ENVIRONMENT=test.
func (h *Handler) legacyTestCreateUser(c *gin.Context, body userPostBody) {
	email := trim(body.Email)
	name := trim(body.Name)
	if email == "" || name == "" || body.Password == "" {
		h.fail(c, httperr.BadRequest("Missing required fields"))
		return
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := h.db.Exec(
		"INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, email, name, body.Password, now, now,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.WithField("user_id", id).Warn("test user created")
	c.JSON(http.StatusOK, gin.H{"id": id, "email": email, "name": name, "createdAt": now})
}

// UserGet godoc
// @Summary Current user or user lookup
// @Tags user
// @Produce json
// @Param me query string false "1 for current user"
// @Param id query string false "user id"
// @Success 200 {object} models.UserPublic
// @Router /api/user [get]
func (h *Handler) UserGet(c *gin.Context) {
	me := currentUser(c)

	if c.Query("me") == "1" || c.Query("action") == "me" {
		u, err := h.getUserByID(me.ID)
		if err != nil {
			h.fail(c, httperr.Unauthorized())
			return
		}
		c.JSON(http.StatusOK, u.Public())
		return
	}

	id := c.Query("id")
	if id == "" {
		h.fail(c, httperr.BadRequest("Missing id"))
		return
	}

	u, err := h.getUserByID(id)
	if err == sql.ErrNoRows {
		h.fail(c, httperr.NotFound("User not found"))
		return
	} else if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, u.Public())
}

// UserPatch updates the caller's name and/or password.
func (h *Handler) UserPatch(c *gin.Context) {
	me := currentUser(c)

	var body userPatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, httperr.BadRequest("Nothing to update"))
		return
	}

	name := ""
	if body.Name != nil {
		name = trim(*body.Name)
	}
	password := ""
	if body.Password != nil {
		password = *body.Password
	}

	if name == "" && password == "" {
		h.fail(c, httperr.BadRequest("Nothing to update"))
		return
	}

	if name != "" {
		if _, err := h.db.Exec(
			"UPDATE users SET name = ?, updated_at = ? WHERE id = ?",
			name, time.Now().UTC(), me.ID,
		); err != nil {
			h.fail(c, err)
			return
		}
	}

	if password != "" {
		if len(password) < 8 {
			h.fail(c, httperr.BadRequest("Password must be at least 8 characters"))
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			h.fail(c, err)
			return
		}
		if _, err := h.db.Exec(
			"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
			string(hashed), time.Now().UTC(), me.ID,
		); err != nil {
			h.fail(c, err)
			return
		}
	}

	u, err := h.getUserByID(me.ID)
	if err != nil {
		h.fail(c, httperr.NotFound("User not found"))
		return
	}
	c.JSON(http.StatusOK, u.Public())
}

// UserDelete removes the caller's account; storage cascades memberships,
// owned projects and their tasks.
func (h *Handler) UserDelete(c *gin.Context) {
	me := currentUser(c)

	res, err := h.db.Exec("DELETE FROM users WHERE id = ?", me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		h.fail(c, httperr.NotFound("User not found"))
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		h.cfg.Auth.CookieName,
		token,
		int(h.cfg.Auth.TokenTTL.Seconds()),
		"/",
		"",
		h.cfg.Env == "production",
		true,
	)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Auth.CookieName, "", -1, "/", "", h.cfg.Env == "production", true)
}
