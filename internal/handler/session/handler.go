package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/model/user"
	sessionService "github.com/oceanmonitor/dashboard/internal/service/session"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// Handler 页面会话的HTTP处理器
type Handler struct {
	sessions *sessionService.Service
}

// New 创建会话处理器
func New(sessions *sessionService.Service) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册创建会话的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
}

// RegisterSessionRoutes 注册单个会话下的路由，需挂在 sessionctx.Middleware 之后
func (h *Handler) RegisterSessionRoutes(r chi.Router) {
	r.Get("/", h.handleGet)
	r.Post("/login", h.handleLogin)
	r.Put("/user", h.handleAttach)
	r.Delete("/", h.handleLogout)
}

type sessionResponse struct {
	ID          string            `json:"id"`
	CurrentUser *user.CurrentUser `json:"currentUser"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess := sessionctx.From(r.Context())
	utils.RespondJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, CurrentUser: sess.CurrentUser()})
}

// handleLogin 登录并把用户信息写入会话
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	sess := sessionctx.From(r.Context())
	current, err := h.sessions.Login(r.Context(), sess.ID, payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, sessionService.ErrMissingLogin):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sessionService.ErrLoginRejected):
			utils.RespondError(w, http.StatusUnauthorized, err.Error())
		default:
			utils.RespondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, CurrentUser: current})
}

// handleAttach 显式设置当前用户；请求体为 null 时清空
func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	var current *user.CurrentUser
	if !utils.DecodeJSON(w, r, &current) {
		return
	}
	if current != nil && current.Username == "" {
		utils.RespondError(w, http.StatusBadRequest, "username is required")
		return
	}

	sess := sessionctx.From(r.Context())
	if err := h.sessions.Attach(r.Context(), sess.ID, current); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, CurrentUser: sess.CurrentUser()})
}

// handleLogout 退出登录，清空会话
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionctx.From(r.Context())
	redirect, err := h.sessions.Logout(r.Context(), sess.ID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"redirect": redirect})
}
