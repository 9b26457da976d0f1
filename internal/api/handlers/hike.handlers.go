package routes

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trektrace/internal/model"
	"trektrace/internal/service/gpx"
	"trektrace/internal/service/hike"
	"trektrace/internal/service/syncer"
)

// HikeHandlers expose hike records, their tracks and the import/export/sync entry points.
type HikeHandlers struct {
	hikes  *hike.Service
	gpx    *gpx.Service
	sync   *syncer.Service
	logger *zap.Logger
}

func NewHikeHandlers(hikes *hike.Service, gpxService *gpx.Service, syncService *syncer.Service, logger *zap.Logger) *HikeHandlers {
	return &HikeHandlers{hikes: hikes, gpx: gpxService, sync: syncService, logger: logger}
}

// SetupHikeHandlers registers the hike endpoints
func SetupHikeHandlers(router *gin.RouterGroup, h *HikeHandlers, begin gin.HandlerFunc) {
	hikes := router.Group("/hikes")
	hikes.GET("", h.List)
	hikes.POST("", begin)
	hikes.GET("/:id", h.Get)
	hikes.PATCH("/:id", h.Update)
	hikes.DELETE("/:id", h.Delete)
	hikes.POST("/:id/finish", h.Finish)
	hikes.POST("/:id/recompute", h.Recompute)
	hikes.GET("/:id/points", h.Points)
	hikes.GET("/:id/stats", h.Stats)
	hikes.GET("/:id/profile", h.Profile)
	hikes.GET("/:id/observe", h.Observe)
	hikes.GET("/:id/gpx", h.ExportGPX)
	hikes.GET("/:id/geojson", h.ExportGeoJSON)
	hikes.POST("/:id/sync", h.Sync)

	router.POST("/import/gpx", h.ImportGPX)
	router.POST("/remote/:remoteId/fetch", h.FetchRemote)
	router.POST("/sync/pending", h.SyncPending)
}

func (h *HikeHandlers) List(c *gin.Context) {
	var filter model.HikeFilter
	var err error
	if filter.Draft, err = queryBool(c, "draft"); err != nil {
		badRequest(c, err)
		return
	}
	if filter.Synced, err = queryBool(c, "synced"); err != nil {
		badRequest(c, err)
		return
	}

	hikes, err := h.hikes.ListHikes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, hikes)
}

func (h *HikeHandlers) Get(c *gin.Context) {
	found, err := h.hikes.GetHike(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *HikeHandlers) Update(c *gin.Context) {
	var details hike.Details
	if err := c.ShouldBindJSON(&details); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.hikes.UpdateDetails(c.Request.Context(), c.Param("id"), details)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *HikeHandlers) Delete(c *gin.Context) {
	if err := h.hikes.DeleteHike(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HikeHandlers) Finish(c *gin.Context) {
	finished, err := h.hikes.FinishHike(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, finished)
}

func (h *HikeHandlers) Recompute(c *gin.Context) {
	updated, err := h.hikes.RecomputeFromImport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *HikeHandlers) Points(c *gin.Context) {
	points, err := h.hikes.Points(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

// Stats returns the summary recomputed over the points recorded so far.
func (h *HikeHandlers) Stats(c *gin.Context) {
	stats, err := h.hikes.LiveStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":           stats,
		"distance":        model.FormatDistance(stats.Distance),
		"duration":        model.FormatDuration(stats.Duration),
		"elevation_gain":  model.FormatElevation(stats.ElevationGain),
		"moving_duration": model.FormatDuration(stats.MovingDuration),
	})
}

func (h *HikeHandlers) Profile(c *gin.Context) {
	profile, err := h.hikes.ElevationProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Observe streams a server-sent "change" event whenever the hike or its
// points change. Clients re-fetch what they display.
func (h *HikeHandlers) Observe(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	sub, err := h.hikes.Observe(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer h.hikes.Unobserve(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("ready", gin.H{"hike_id": id})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent("change", gin.H{"hike_id": id})
			return true
		}
	})
}

func (h *HikeHandlers) ExportGPX(c *gin.Context) {
	name, data, err := h.gpx.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/gpx+xml", data)
}

func (h *HikeHandlers) ExportGeoJSON(c *gin.Context) {
	data, err := h.gpx.ExportGeoJSON(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// ImportGPX accepts either a multipart upload in the "file" field or the raw
// document as the request body. The hike name comes from the "name" query or form value.
func (h *HikeHandlers) ImportGPX(c *gin.Context) {
	name := c.Query("name")
	body := io.Reader(c.Request.Body)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, err)
			return
		}
		if name == "" {
			name = c.PostForm("name")
		}
		var f multipart.File
		if f, err = fh.Open(); err != nil {
			badRequest(c, err)
			return
		}
		defer f.Close()
		body = f
	}

	imported, err := h.gpx.Import(c.Request.Context(), body, name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, imported)
}

func (h *HikeHandlers) Sync(c *gin.Context) {
	id := c.Param("id")
	remoteID, err := h.sync.SyncHike(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncer.Result{HikeID: id, RemoteID: remoteID, Success: true})
}

func (h *HikeHandlers) SyncPending(c *gin.Context) {
	results, err := h.sync.SyncAllPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *HikeHandlers) FetchRemote(c *gin.Context) {
	fetched, err := h.sync.FetchRemoteHike(c.Request.Context(), c.Param("remoteId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fetched)
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New("query " + key + " must be a boolean")
	}
	return &v, nil
}
