package api

import (
	"database/sql"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/auth"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/config"
	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/httperr"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware authenticates the request from the session cookie: verify
// the token, then resolve the subject to a live user row. A valid token for
// a deleted user is still Unauthorized.
func AuthMiddleware(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cfg.Auth.CookieName)
		if err != nil || token == "" {
			httperr.Abort(c, httperr.Unauthorized())
			return
		}

		session, err := auth.VerifyToken(token, cfg.Auth.Secret)
		if err != nil {
			httperr.Abort(c, httperr.Unauthorized())
			return
		}

		var id, email, name string
		err = db.QueryRow(
			"SELECT id, email, name FROM users WHERE id = ?", session.UserID,
		).Scan(&id, &email, &name)
		if err == sql.ErrNoRows {
			httperr.Abort(c, httperr.Unauthorized())
			return
		} else if err != nil {
			httperr.Abort(c, httperr.Internal("Database error"))
			return
		}

		c.Set("user_id", id)
		c.Set("user_email", email)
		c.Set("user_name", name)
		c.Next()
	}
}
