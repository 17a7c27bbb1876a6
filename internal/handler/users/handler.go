package users

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/model/user"
	usersService "github.com/oceanmonitor/dashboard/internal/service/users"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// Handler 用户管理页面的HTTP处理器。当前用户一律取自会话。
type Handler struct{}

// New 创建用户管理处理器
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册用户管理相关的路由，需挂在 sessionctx.Middleware 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.handleList)
	r.Get("/users/{username}", h.handleGet)
	r.Delete("/users/{username}", h.handleDelete)
	r.Post("/users/{username}/edit", h.handleEdit)
	r.Put("/users/{username}", h.handleUpdate)
}

type actionResponse struct {
	usersService.ActionResult
	Users []user.User `json:"users,omitempty"`
	User  *user.User  `json:"user,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	dir := sessionctx.From(r.Context()).Workspace().Users
	if _, err := dir.Fetch(r.Context()); err != nil {
		utils.RespondJSON(w, http.StatusBadGateway, dir.Snapshot())
		return
	}
	utils.RespondJSON(w, http.StatusOK, dir.Snapshot())
}

// handleGet 加载编辑页面的用户信息
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	dir := sessionctx.From(r.Context()).Workspace().Users
	u, err := dir.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, usersService.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionctx.From(r.Context())
	dir := sess.Workspace().Users

	result, err := dir.Delete(r.Context(), sess.CurrentUser(), chi.URLParam(r, "username"))
	if err != nil {
		utils.RespondJSON(w, statusFor(err), actionResponse{ActionResult: result})
		return
	}
	utils.RespondJSON(w, http.StatusOK, actionResponse{ActionResult: result, Users: dir.Snapshot().Users})
}

// handleEdit 管理员跳转到编辑页面
func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	sess := sessionctx.From(r.Context())

	result, err := sess.Workspace().Users.Edit(sess.CurrentUser(), chi.URLParam(r, "username"))
	if err != nil {
		utils.RespondJSON(w, statusFor(err), actionResponse{ActionResult: result})
		return
	}
	utils.RespondJSON(w, http.StatusOK, actionResponse{ActionResult: result})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var changes user.Update
	if !utils.DecodeJSON(w, r, &changes) {
		return
	}

	sess := sessionctx.From(r.Context())
	updated, result, err := sess.Workspace().Users.Update(r.Context(), sess.CurrentUser(), chi.URLParam(r, "username"), changes)
	if err != nil {
		utils.RespondJSON(w, statusFor(err), actionResponse{ActionResult: result})
		return
	}
	utils.RespondJSON(w, http.StatusOK, actionResponse{ActionResult: result, User: updated})
}

func statusFor(err error) int {
	if errors.Is(err, usersService.ErrNotAdmin) {
		return http.StatusForbidden
	}
	return http.StatusBadGateway
}
