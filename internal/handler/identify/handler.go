package identify

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	identifyService "github.com/oceanmonitor/dashboard/internal/service/identify"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

const maxUploadSize = 10 << 20

// Handler 海洋生物识别面板的HTTP处理器
type Handler struct{}

// New 创建识别处理器
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册识别相关的路由，需挂在 sessionctx.Middleware 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/identify", h.handleSnapshot)
	r.Post("/identify", h.handleUpload)
}

func flowFrom(r *http.Request) *identifyService.Flow {
	return sessionctx.From(r.Context()).Workspace().Identify
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, flowFrom(r).Snapshot())
}

// handleUpload 接收 multipart 的 file 字段，选择后立即上传识别
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	flow := flowFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			log.Printf("[identify] read upload failed: %v", err)
		}
		utils.RespondJSON(w, http.StatusBadRequest, flow.Snapshot())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	// 只认客户端声明的类型
	upload := client.Upload{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}
	if err := flow.Select(upload); err != nil {
		utils.RespondJSON(w, statusFor(err), flow.Snapshot())
		return
	}

	if _, err := flow.Upload(r.Context()); err != nil {
		utils.RespondJSON(w, statusFor(err), flow.Snapshot())
		return
	}
	utils.RespondJSON(w, http.StatusOK, flow.Snapshot())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, identifyService.ErrUnsupportedType), errors.Is(err, identifyService.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, identifyService.ErrUploadInFlight):
		return http.StatusConflict
	case errors.Is(err, identifyService.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, identifyService.ErrRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
