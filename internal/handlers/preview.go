package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cvpolish-core/internal/render"
	"cvpolish-core/pkg/logging/logging"
)

// PreviewHandler exposes the render engine over HTTP. One document is
// open at a time, mirroring the single-viewer model of the UI.
type PreviewHandler struct {
	Engine *render.Engine
}

func NewPreviewHandler(engine *render.Engine) *PreviewHandler {
	return &PreviewHandler{Engine: engine}
}

type openPreviewRequest struct {
	URL              string  `json:"url"`
	PageCount        int     `json:"page_count"`
	PageWidth        float64 `json:"page_width"`
	PageHeight       float64 `json:"page_height"`
	ContainerWidth   float64 `json:"container_width"`
	ContainerHeight  float64 `json:"container_height"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

type openPreviewResponse struct {
	Scale       float64 `json:"scale"`
	TotalHeight float64 `json:"total_height"`
	TotalPages  int     `json:"total_pages"`
}

// Open handles POST /v1/preview: loads a document into the engine and
// sizes the virtual layout for the caller's container.
func (h *PreviewHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req openPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	h.Engine.Reset()
	err := h.Engine.Initialize(render.Document{
		URL:        req.URL,
		PageCount:  req.PageCount,
		PageWidth:  req.PageWidth,
		PageHeight: req.PageHeight,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.Engine.Resize(req.ContainerWidth, req.ContainerHeight, req.DevicePixelRatio)

	logger.Info("preview opened",
		zap.String("url", req.URL),
		zap.Int("pages", req.PageCount),
		zap.Float64("scale", h.Engine.Scale()),
	)
	writeJSON(w, http.StatusOK, openPreviewResponse{
		Scale:       h.Engine.Scale(),
		TotalHeight: h.Engine.TotalHeight(),
		TotalPages:  req.PageCount,
	})
}

// Page handles GET /v1/preview/pages/{page}: blocks until the bitmap is
// cached (or the client goes away) and streams it back as PNG.
func (h *PreviewHandler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}

	bitmap, err := h.Engine.RenderPage(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			// Client gave up; nothing useful to write.
			logger.Debug("page render abandoned", zap.Int("page", page))
			return
		}
		logger.Warn("page render failed", zap.Int("page", page), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(bitmap.Pixels)
}

type scrollRequest struct {
	ScrollTop float64 `json:"scroll_top"`
}

// Scroll handles POST /v1/preview/scroll: records the new offset and
// returns the visible page window. Uncached pages in the window start
// rendering in the background.
func (h *PreviewHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.UpdateScroll(req.ScrollTop))
}

type zoomRequest struct {
	Scale float64 `json:"scale"`
}

// Zoom handles POST /v1/preview/zoom.
func (h *PreviewHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	h.Engine.SetScale(req.Scale)
	writeJSON(w, http.StatusOK, map[string]float64{
		"scale":        h.Engine.Scale(),
		"total_height": h.Engine.TotalHeight(),
	})
}

// Stats handles GET /v1/preview/stats.
func (h *PreviewHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Stats())
}

// Close handles DELETE /v1/preview: drops the document and all cached bitmaps.
func (h *PreviewHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.Engine.Reset()
	w.WriteHeader(http.StatusNoContent)
}
