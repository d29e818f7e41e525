package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"telehealth-signaling/internal/auth"
	"telehealth-signaling/internal/directory"
	"telehealth-signaling/internal/events"
	"telehealth-signaling/internal/media"
	"telehealth-signaling/internal/rbac"
	"telehealth-signaling/internal/signaling"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Directory directory.Directory
	Signaling *signaling.Service
	Events    events.Store
	Media     media.TokenProvider
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair for a directory user.
//
// Credential validation lives in the upstream account system; this service
// only vouches for users it can resolve.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Directory == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "user_id required"})
		return
	}

	u, ok, err := h.Directory.Resolve(c.Request.Context(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "directory lookup failed"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown user"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), u.ID, u.DisplayName, u.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Event bus ---

type emitRequest struct {
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EmitEvent appends a custom event to a recipient's stream.
// Call-lifecycle types are reserved for the signaling service, the sole
// writer of call state.
func (h Handlers) EmitEvent(c *gin.Context) {
	var req emitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if req.UserID == "" || req.EventType == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "user_id and event_type required"})
		return
	}
	if events.EventType(req.EventType).IsCallEvent() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "reserved event type"})
		return
	}

	if _, ok, err := h.Directory.Resolve(c.Request.Context(), req.UserID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "directory lookup failed"})
		return
	} else if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown recipient"})
		return
	}

	e, err := h.Events.Append(c.Request.Context(), req.UserID, events.EventType(req.EventType), events.Payload{Data: req.Data})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "append failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "event_id": e.ID, "sequence": e.Sequence})
}

// PollEvents returns events newer than the cursor for a recipient,
// ordered by sequence ascending.
func (h Handlers) PollEvents(c *gin.Context) {
	recipient, ok := h.recipientFor(c, c.Query("userId"))
	if !ok {
		return
	}

	since := int64(0)
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	out, err := h.Events.Poll(c.Request.Context(), recipient, since)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "poll failed"})
		return
	}

	cursor := since
	for _, e := range out {
		if e.Sequence > cursor {
			cursor = e.Sequence
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": out, "cursor": cursor})
}

type ackRequest struct {
	UpTo int64 `json:"up_to"`
}

// AckEvents deletes the caller's consumed events up to a cursor.
func (h Handlers) AckEvents(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "identity required"})
		return
	}

	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	if req.UpTo <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "up_to must be positive"})
		return
	}

	if err := h.Events.Ack(c.Request.Context(), userID, req.UpTo); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "ack failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// recipientFor resolves which user's stream a request may touch: your own,
// or anyone's for staff roles.
func (h Handlers) recipientFor(c *gin.Context, requested string) (string, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "identity required"})
		return "", false
	}
	if requested == "" || requested == userID {
		return userID, true
	}
	role, _ := auth.Role(c.Request.Context())
	if !rbac.IsStaff(role) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "cannot access another user's stream"})
		return "", false
	}
	return requested, true
}
