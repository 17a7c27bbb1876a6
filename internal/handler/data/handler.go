package data

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
	sessionService "github.com/oceanmonitor/dashboard/internal/service/session"
	"github.com/oceanmonitor/dashboard/internal/service/view"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// VideoSource opens the upstream demo video.
type VideoSource interface {
	OpenVideo(ctx context.Context, name, rangeHeader string) (*http.Response, error)
}

// Handler 数据展示页面（鱼类统计、市场行情、天气、空气质量、水质）的HTTP处理器
type Handler struct {
	video VideoSource
}

// New 创建数据页面处理器
func New(video VideoSource) *Handler {
	return &Handler{video: video}
}

// RegisterRoutes 注册数据页面路由，需挂在 sessionctx.Middleware 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/views/{name}", h.handleLoad)
	r.Delete("/views/{name}", h.handleClose)
}

// RegisterVideoRoutes 注册视频透传路由，不依赖会话
func (h *Handler) RegisterVideoRoutes(r chi.Router) {
	r.Get("/video/{name}", h.handleVideo)
}

// handleLoad 挂载页面并加载数据
func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	ws := sessionctx.From(r.Context()).Workspace()

	switch chi.URLParam(r, "name") {
	case "fish":
		load(w, r, ws.Fish)
	case "market":
		load(w, r, ws.Market)
	case "weather":
		load(w, r, ws.Weather)
	case "air-quality":
		load(w, r, ws.AirQuality)
	case "water-quality":
		query := r.URL.Query()
		filter := ocean.WaterQualityFilter{
			Year:     query.Get("year"),
			Month:    query.Get("month"),
			Province: query.Get("province"),
			Basin:    query.Get("basin"),
		}
		if filter.Year == "" || filter.Month == "" {
			utils.RespondError(w, http.StatusBadRequest, "year and month are required")
			return
		}
		load(w, r, ws.WaterQuality(filter))
	default:
		utils.RespondError(w, http.StatusNotFound, "unknown view")
	}
}

// handleClose 离开页面，丢弃尚未返回的请求结果
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	ws := sessionctx.From(r.Context()).Workspace()

	if !closeView(ws, chi.URLParam(r, "name")) {
		utils.RespondError(w, http.StatusNotFound, "unknown view")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func closeView(ws *sessionService.Workspace, name string) bool {
	switch name {
	case "fish":
		ws.Fish.Close()
	case "market":
		ws.Market.Close()
	case "weather":
		ws.Weather.Close()
	case "air-quality":
		ws.AirQuality.Close()
	case "water-quality":
		ws.CloseWaterQuality()
	default:
		return false
	}
	return true
}

func load[T any](w http.ResponseWriter, r *http.Request, v *view.View[T]) {
	snap, err := v.Load(r.Context())
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, snap)
	case errors.Is(err, view.ErrSuperseded):
		utils.RespondJSON(w, http.StatusConflict, snap)
	default:
		utils.RespondJSON(w, http.StatusBadGateway, snap)
	}
}

var videoHeaders = []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"}

// handleVideo 透传上游视频流，保留 Range 请求以支持拖动播放
func (h *Handler) handleVideo(w http.ResponseWriter, r *http.Request) {
	resp, err := h.video.OpenVideo(r.Context(), chi.URLParam(r, "name"), r.Header.Get("Range"))
	if err != nil {
		status := http.StatusBadGateway
		var clientErr *client.Error
		if errors.As(err, &clientErr) && clientErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	defer resp.Body.Close()

	for _, key := range videoHeaders {
		if value := resp.Header.Get(key); value != "" {
			w.Header().Set(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[video] copy interrupted: %v", err)
	}
}
