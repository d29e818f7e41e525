package httpapi

import (
	"context"
	"errors"
	"net/http"

	"telehealth-signaling/internal/auth"
	"telehealth-signaling/internal/media"
	"telehealth-signaling/internal/signaling"

	"github.com/gin-gonic/gin"
)

type initiateCallRequest struct {
	CalleeID      string `json:"callee_id"`
	CalleeName    string `json:"callee_name,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	ChannelName   string `json:"channel_name,omitempty"`
}

// InitiateCall places a call from the authenticated user to a callee. The
// callee learns about it from its event stream and the pending-call list.
func (h Handlers) InitiateCall(c *gin.Context) {
	callerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "identity required"})
		return
	}

	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	sess, err := h.Signaling.InitiateCall(c.Request.Context(), signaling.InitiateCallRequest{
		CallerID:      callerID,
		CallerName:    auth.DisplayName(c.Request.Context()),
		CalleeID:      req.CalleeID,
		CalleeName:    req.CalleeName,
		AppointmentID: req.AppointmentID,
		ChannelName:   req.ChannelName,
	})
	switch {
	case errors.Is(err, signaling.ErrInvalidRecipient):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "callee cannot be resolved"})
		return
	case errors.Is(err, signaling.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid call request"})
		return
	case errors.Is(err, signaling.ErrActiveCallLimit):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": "too many concurrent ringing calls"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "call initiation failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "call": sess})
}

// The four lifecycle endpoints share one shape: actor from the token, call
// id from the path, applied=false in the body when the session had already
// moved on.

func (h Handlers) AcceptCall(c *gin.Context)    { h.transition(c, h.Signaling.AcceptCall) }
func (h Handlers) RejectCall(c *gin.Context)    { h.transition(c, h.Signaling.RejectCall) }
func (h Handlers) EndCall(c *gin.Context)       { h.transition(c, h.Signaling.EndCall) }
func (h Handlers) MarkConnected(c *gin.Context) { h.transition(c, h.Signaling.MarkConnected) }

type transitionFunc func(ctx context.Context, callID, actorID string) (signaling.TransitionResult, error)

func (h Handlers) transition(c *gin.Context, do transitionFunc) {
	actorID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "identity required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "call_id required"})
		return
	}

	res, err := do(c.Request.Context(), callID, actorID)
	switch {
	case errors.Is(err, signaling.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid call action"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "call action failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": res.Applied, "call": res.Session})
}

// --- Pending-call notifications ---

// PendingCalls returns unacknowledged incoming calls for a recipient. It
// serves clients that missed the initiate-call event on their stream.
func (h Handlers) PendingCalls(c *gin.Context) {
	recipient, ok := h.recipientFor(c, c.Query("doctorId"))
	if !ok {
		return
	}

	calls, err := h.Signaling.ListPendingCalls(c.Request.Context(), recipient)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "pending call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "calls": calls})
}

// AckPendingCall marks one incoming-call notification as seen without
// touching call status. Without a callId it acknowledges every pending
// call for the recipient.
func (h Handlers) AckPendingCall(c *gin.Context) {
	recipient, ok := h.recipientFor(c, c.Query("doctorId"))
	if !ok {
		return
	}

	if callID := c.Query("callId"); callID != "" {
		if err := h.Signaling.AcknowledgePendingCall(c.Request.Context(), recipient, callID); err != nil {
			if errors.Is(err, signaling.ErrInvalidArgument) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "call does not belong to recipient"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "acknowledge failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	calls, err := h.Signaling.ListPendingCalls(c.Request.Context(), recipient)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "pending call lookup failed"})
		return
	}
	for _, sess := range calls {
		if err := h.Signaling.AcknowledgePendingCall(c.Request.Context(), recipient, sess.CallID); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "acknowledge failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "acknowledged": len(calls)})
}

// --- Media tokens ---

type tokenRequest struct {
	ChannelName string `json:"channel_name"`
	UID         string `json:"uid,omitempty"`
	Role        string `json:"role,omitempty"`
}

// RequestToken mints a media join token for the authenticated user. Staff
// may request tokens on behalf of another uid.
func (h Handlers) RequestToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	uid, ok := h.recipientFor(c, req.UID)
	if !ok {
		return
	}

	role := media.Role(req.Role)
	if role == "" {
		role = media.RolePublisher
	}

	res, err := h.Media.RequestToken(c.Request.Context(), media.TokenRequest{
		ChannelName: req.ChannelName,
		UID:         uid,
		Role:        role,
	})
	switch {
	case errors.Is(err, media.ErrInvalidAppConfiguration):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "media app is misconfigured"})
		return
	case errors.Is(err, media.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid token request"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"success": false, "error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": res.Token, "app_id": res.AppID, "channel": res.Channel, "uid": res.UID, "expires": res.ExpiresAt})
}
