package chat

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/model/chat"
	chatService "github.com/oceanmonitor/dashboard/internal/service/chat"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// Handler 智能问答页面的HTTP处理器
type Handler struct {
	ws *wsHandler
}

// New 创建聊天处理器，allowedOrigin 限定 WebSocket 握手的来源
func New(allowedOrigin string) *Handler {
	return &Handler{ws: newWSHandler(allowedOrigin)}
}

// RegisterRoutes 注册聊天相关的路由，需挂在 sessionctx.Middleware 之后
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handleSnapshot)
	r.Post("/chat", h.handleSubmit)
	r.Delete("/chat", h.handleReset)
	r.Get("/chat/stream", h.handleStream)
	r.Get("/chat/ws", h.ws.handle)
}

type submitResponse struct {
	Entry        chat.Entry    `json:"entry"`
	Conversation chat.Snapshot `json:"conversation"`
	Error        string        `json:"error,omitempty"`
}

func flowFrom(r *http.Request) *chatService.Flow {
	return sessionctx.From(r.Context()).Workspace().Chat
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, flowFrom(r).Snapshot())
}

// handleSubmit 提交问题并等待回答。失败的回答同样写入对话记录。
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
	}
	if !utils.DecodeJSON(w, r, &payload) {
		return
	}

	flow := flowFrom(r)
	entry, err := flow.Submit(r.Context(), payload.Question)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway || status == http.StatusServiceUnavailable {
			utils.RespondJSON(w, status, submitResponse{Entry: entry, Conversation: flow.Snapshot(), Error: entry.Answer})
			return
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{Entry: entry, Conversation: flow.Snapshot()})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	flow := flowFrom(r)
	flow.Reset()
	utils.RespondJSON(w, http.StatusOK, flow.Snapshot())
}

// handleStream 以SSE方式返回回答片段
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if question == "" {
		utils.RespondError(w, http.StatusBadRequest, "question query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess := sessionctx.From(r.Context())
	utils.SetupSSEHeaders(w)
	_ = utils.SendSSEEvent(w, flusher, "start", map[string]string{"sessionId": sess.ID})

	entry, err := sess.Workspace().Chat.SubmitStream(r.Context(), question, func(chunk string) error {
		return utils.SendSSEEvent(w, flusher, "delta", map[string]string{"content": chunk})
	})
	if err != nil {
		log.Printf("[stream] session=%s failed: %v", sess.ID, err)
		message := err.Error()
		if entry.Answer != "" {
			message = entry.Answer
		}
		_ = utils.SendSSEEvent(w, flusher, "error", map[string]any{"error": message, "entry": entry})
		return
	}

	_ = utils.SendSSEEvent(w, flusher, "end", map[string]any{"entry": entry, "finished": true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrSubmissionInFlight), errors.Is(err, chatService.ErrStale):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrCompleterUnavailable), errors.Is(err, chatService.ErrStreamingUnsupported):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
