package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trektrace/internal/service/hike"
	"trektrace/internal/service/location"
)

// SessionHandlers drive the tracking session and accept fixes pushed by the device.
type SessionHandlers struct {
	hikes    *hike.Service
	provider *location.PushProvider
	logger   *zap.Logger
}

func NewSessionHandlers(hikes *hike.Service, provider *location.PushProvider, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{hikes: hikes, provider: provider, logger: logger}
}

// SetupSessionHandlers registers the session management endpoints
func SetupSessionHandlers(router *gin.RouterGroup, h *SessionHandlers) {
	group := router.Group("/session")

	group.POST("/start", h.Start)
	group.POST("/pause", h.Pause)
	group.POST("/resume", h.Resume)
	group.POST("/stop", h.Stop)
	group.GET("/status", h.Status)
	group.GET("/active", h.Active)
	group.GET("/location", h.Location)
	group.POST("/fixes", h.Fixes)
	group.POST("/fault", h.Fault)
	group.PUT("/permissions", h.Permissions)
}

type beginRequest struct {
	Name string `json:"name"`
}

// Start creates a hike and starts recording it.
func (h *SessionHandlers) Start(c *gin.Context) {
	var req beginRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	created, err := h.hikes.BeginHike(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *SessionHandlers) Pause(c *gin.Context) {
	if err := h.hikes.PauseTracking(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.hikes.SessionStatus())
}

func (h *SessionHandlers) Resume(c *gin.Context) {
	if err := h.hikes.ResumeTracking(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.hikes.SessionStatus())
}

// Stop ends recording without finishing the hike.
func (h *SessionHandlers) Stop(c *gin.Context) {
	if err := h.hikes.StopTracking(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.hikes.SessionStatus())
}

func (h *SessionHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.hikes.SessionStatus())
}

func (h *SessionHandlers) Active(c *gin.Context) {
	active, err := h.hikes.ActiveHike(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, active)
}

func (h *SessionHandlers) Location(c *gin.Context) {
	fix, err := h.hikes.CurrentFix(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fix)
}

type fixesRequest struct {
	Fixes []location.Fix `json:"fixes" binding:"required"`
}

// Fixes hands a batch of device fixes to the running session.
func (h *SessionHandlers) Fixes(c *gin.Context) {
	var req fixesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.provider.Deliver(req.Fixes); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Fixes)})
}

type faultRequest struct {
	Message string `json:"message" binding:"required"`
}

// Fault reports a device-side delivery error; the session drops it and keeps running.
func (h *SessionHandlers) Fault(c *gin.Context) {
	var req faultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.provider.Fail(errors.New(req.Message)); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Warn("device reported delivery fault", zap.String("message", req.Message))
	c.Status(http.StatusAccepted)
}

type permissionsRequest struct {
	Foreground bool `json:"foreground"`
	Background bool `json:"background"`
}

// Permissions records the location permissions the user granted on the device.
func (h *SessionHandlers) Permissions(c *gin.Context) {
	var req permissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.provider.SetPermissions(req.Foreground, req.Background)
	c.JSON(http.StatusOK, req)
}
