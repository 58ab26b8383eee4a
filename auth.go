package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// sessionStore looks up users and their opaque auth tokens.
type sessionStore interface {
	UserByUsername(ctx context.Context, username string) (user, error)
	UserIDByToken(ctx context.Context, token string) (int, error)
	RotateToken(ctx context.Context, userID int) (string, error)
}

// pgSessionStore keeps sessions in the users table.
type pgSessionStore struct {
	db *pgxpool.Pool
}

func newSessionStore(db *pgxpool.Pool) *pgSessionStore {
	return &pgSessionStore{db: db}
}

func (s *pgSessionStore) UserByUsername(ctx context.Context, username string) (user, error) {
	return queryOne[user](s.db, ctx,
		"SELECT id, username, email, auth_token, password, created_at FROM users WHERE username = @username",
		pgx.NamedArgs{"username": username})
}

func (s *pgSessionStore) UserIDByToken(ctx context.Context, token string) (int, error) {
	var userID int
	err := s.db.QueryRow(ctx, "SELECT id FROM users WHERE auth_token = $1", token).Scan(&userID)
	return userID, err
}

// RotateToken replaces the user's token, which signs out every session
// holding the old one.
func (s *pgSessionStore) RotateToken(ctx context.Context, userID int) (string, error) {
	token := uuid.NewString()
	tag, err := s.db.Exec(ctx, "UPDATE users SET auth_token = $1 WHERE id = $2", token, userID)
	if err != nil {
		return "", fmt.Errorf("rotate token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", pgx.ErrNoRows
	}
	return token, nil
}

// dummyHash is a pre-computed bcrypt hash used when a login username isn't found.
// Running bcrypt against it (instead of returning early) keeps response time
// constant, preventing timing-based username enumeration.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)

// login verifies username/password and returns the user's auth token.
// POST /api/login (public, no auth required).
func (h *Handler) login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	u, lookupErr := h.sessions.UserByUsername(c.Request.Context(), body.Username)

	// Always run bcrypt to keep response time constant regardless of whether the
	// username was found.
	hashToCheck := string(dummyHash)
	if lookupErr == nil {
		hashToCheck = u.Password
	}
	compareErr := bcrypt.CompareHashAndPassword([]byte(hashToCheck), []byte(body.Password))

	if lookupErr != nil || compareErr != nil {
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if h.hub != nil {
		h.hub.broadcast(u.ID, realtimeEvent{Kind: eventSignedIn})
	}
	c.JSON(http.StatusOK, gin.H{"token": u.AuthToken, "user_id": u.ID})
}

// logout rotates the caller's token and tells their open sockets.
// POST /api/logout.
func (h *Handler) logout(c *gin.Context) {
	userID := c.GetInt("user_id")

	if _, err := h.sessions.RotateToken(c.Request.Context(), userID); err != nil {
		log.Printf("[logout] user %d: %v", userID, err)
		apiError(c, http.StatusInternalServerError, "failed to sign out")
		return
	}
	if h.hub != nil {
		h.hub.broadcast(userID, realtimeEvent{Kind: eventSignedOut})
	}
	c.Status(http.StatusNoContent)
}

// authMiddleware validates the Bearer token and sets user_id on the context.
// Browsers cannot set headers on a websocket handshake, so upgrade requests
// may pass the token as ?token= instead.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		header := c.GetHeader("Authorization")
		switch {
		case strings.HasPrefix(header, "Bearer "):
			token = strings.TrimPrefix(header, "Bearer ")
		case websocket.IsWebSocketUpgrade(c.Request) && c.Query("token") != "":
			token = c.Query("token")
		default:
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		userID, err := h.sessions.UserIDByToken(c.Request.Context(), token)
		if err != nil {
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
