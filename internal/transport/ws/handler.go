package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"crewmate/internal/app"
	"crewmate/internal/auth"
)

// Handler handles WebSocket connections
type Handler struct {
	hub      *app.Hub
	issuer   *auth.Issuer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *app.Hub, issuer *auth.Issuer, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		issuer: issuer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins for development
				// In production, you should validate the origin
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests. The player is identified by
// the token issued when they created or joined the room.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	identity, err := h.issuer.Verify(token)
	if err != nil {
		http.Error(w, "valid token is required", http.StatusUnauthorized)
		return
	}

	if roomCode := r.URL.Query().Get("roomCode"); roomCode != "" && !strings.EqualFold(roomCode, identity.RoomCode) {
		http.Error(w, "token does not match room", http.StatusForbidden)
		return
	}

	exists, err := h.hub.RoomExists(r.Context(), identity.RoomCode)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, h.hub, identity.PlayerID, h.logger.With("roomCode", identity.RoomCode))

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	session, err := h.hub.OpenSession(ctx, identity.RoomCode, client)
	cancel()
	if err != nil {
		h.logger.Info("session rejected", "roomCode", identity.RoomCode, "playerID", identity.PlayerID, "error", err)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrorCode(err))
		conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
		return
	}

	h.logger.Info("websocket connected",
		"roomCode", identity.RoomCode,
		"playerID", identity.PlayerID,
	)

	client.Run(session)
}
