package predict

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	predictService "github.com/oceanmonitor/dashboard/internal/service/predict"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// Handler 体长预测面板的HTTP处理器
type Handler struct{}

// New 创建预测处理器
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册预测相关的路由，需挂在 sessionctx.Middleware 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/predict", h.handleSnapshot)
	r.Post("/predict", h.handlePredict)
}

func flowFrom(r *http.Request) *predictService.Flow {
	return sessionctx.From(r.Context()).Workspace().Predict
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, flowFrom(r).Snapshot())
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var inputs predictService.Inputs
	if !utils.DecodeJSON(w, r, &inputs) {
		return
	}

	flow := flowFrom(r)
	if _, err := flow.Predict(r.Context(), inputs); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, predictService.ErrInvalidInputs):
			status = http.StatusBadRequest
		case errors.Is(err, predictService.ErrRejected):
			status = http.StatusUnprocessableEntity
		}
		utils.RespondJSON(w, status, flow.Snapshot())
		return
	}
	utils.RespondJSON(w, http.StatusOK, flow.Snapshot())
}
