package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"crewmate/internal/auth"
	"crewmate/internal/domain"
)

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NameRequest is the body for creating and joining a room
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// JoinResponse is returned to a player who created or joined a room
type JoinResponse struct {
	RoomCode   string `json:"roomCode"`
	PlayerID   string `json:"playerId"`
	Token      string `json:"token"`
	InviteLink string `json:"inviteLink"`
	IsHost     bool   `json:"isHost"`
}

// RoomExistsResponse is the response for checking if room exists
type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	ActiveRooms      int `json:"activeRooms"`
	ConnectedPlayers int `json:"connectedPlayers"`
}

// handleCreateRoom handles POST /api/rooms
func (s *Server) handleCreateRoom(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "Name is required")
		return
	}

	room, host, err := s.hub.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	s.sendJoined(c, room.Code, host.ID, true)
}

// handleJoinRoom handles POST /api/rooms/:code/players
func (s *Server) handleJoinRoom(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "Name is required")
		return
	}

	code := roomCode(c)
	player, err := s.hub.JoinRoom(c.Request.Context(), code, req.Name)
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	s.sendJoined(c, code, player.ID, false)
}

func (s *Server) sendJoined(c *gin.Context, code, playerID string, host bool) {
	token, err := s.issuer.Issue(code, playerID)
	if err != nil {
		s.logger.Error("token issue failed", "roomCode", code, "error", err)
		s.sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	c.JSON(http.StatusCreated, &Response{
		Success: true,
		Data: &JoinResponse{
			RoomCode:   code,
			PlayerID:   playerID,
			Token:      token,
			InviteLink: s.inviteLink(c, code),
			IsHost:     host,
		},
	})
}

// handleGetRoom handles GET /api/rooms/:code
func (s *Server) handleGetRoom(c *gin.Context) {
	info, err := s.hub.GetRoomInfo(c.Request.Context(), roomCode(c))
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	s.sendSuccess(c, info)
}

// handleRoomExists handles GET /api/rooms/:code/exists
func (s *Server) handleRoomExists(c *gin.Context) {
	exists, err := s.hub.RoomExists(c.Request.Context(), roomCode(c))
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	s.sendSuccess(c, &RoomExistsResponse{Exists: exists})
}

// handleRoomQR handles GET /api/rooms/:code/qr with a PNG of the invite link
func (s *Server) handleRoomQR(c *gin.Context) {
	code := roomCode(c)
	exists, err := s.hub.RoomExists(c.Request.Context(), code)
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	if !exists {
		s.sendDomainError(c, domain.ErrRoomNotFound)
		return
	}

	png, err := qrcode.Encode(s.inviteLink(c, code), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("qr encode failed", "roomCode", code, "error", err)
		s.sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// handleGetState handles GET /api/rooms/:code/state for a token holder
func (s *Server) handleGetState(c *gin.Context) {
	identity := c.MustGet(identityKey).(auth.Identity)
	state, err := s.hub.Engine(identity.RoomCode, identity.PlayerID).CurrentState(c.Request.Context())
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	s.sendSuccess(c, state)
}

// handleUpdateSettings handles PUT /api/rooms/:code/settings for the host
func (s *Server) handleUpdateSettings(c *gin.Context) {
	identity := c.MustGet(identityKey).(auth.Identity)

	var settings domain.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		s.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid settings")
		return
	}

	engine := s.hub.Engine(identity.RoomCode, identity.PlayerID)
	host, err := engine.IsHost(c.Request.Context())
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	if !host {
		s.sendDomainError(c, domain.ErrNotHost)
		return
	}
	if err := engine.UpdateSettings(c.Request.Context(), settings); err != nil {
		s.sendDomainError(c, err)
		return
	}

	current, err := engine.Settings(c.Request.Context())
	if err != nil {
		s.sendDomainError(c, err)
		return
	}
	s.sendSuccess(c, current)
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(c *gin.Context) {
	s.sendSuccess(c, &HealthResponse{
		Status: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	s.sendSuccess(c, &StatsResponse{
		ActiveRooms:      s.hub.GetSessionCount(),
		ConnectedPlayers: s.hub.GetTotalPlayerCount(),
	})
}

// inviteLink builds the join link, preferring the configured public URL
func (s *Server) inviteLink(c *gin.Context, code string) string {
	base := strings.TrimRight(s.config.Server.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/join/" + code
}

func roomCode(c *gin.Context) string {
	return strings.ToUpper(c.Param("code"))
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(c *gin.Context, status int, code, message string) {
	c.JSON(status, &Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}

// sendDomainError maps a domain error onto a status and error code
func (s *Server) sendDomainError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "Internal server error"

	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		status, code, message = http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found"
	case errors.Is(err, domain.ErrRoomClosed):
		status, code, message = http.StatusGone, "ROOM_CLOSED", "Room is closed"
	case errors.Is(err, domain.ErrGameFull):
		status, code, message = http.StatusConflict, "GAME_FULL", "Game is full"
	case errors.Is(err, domain.ErrGameAlreadyStarted):
		status, code, message = http.StatusConflict, "GAME_ALREADY_STARTED", "Game has already started"
	case errors.Is(err, domain.ErrNotHost):
		status, code, message = http.StatusForbidden, "NOT_HOST", "Only the host can do this"
	case errors.Is(err, domain.ErrEmptyName),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidTimer):
		status, code, message = http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	s.sendError(c, status, code, message)
}
