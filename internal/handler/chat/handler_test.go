package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/model/chat"
	chatService "github.com/oceanmonitor/dashboard/internal/service/chat"
	"github.com/oceanmonitor/dashboard/internal/service/identify"
	sessionService "github.com/oceanmonitor/dashboard/internal/service/session"
)

type fakeCompleter struct {
	err error
}

func (f *fakeCompleter) GenerateResponse(_ context.Context, question string) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage("答: "+question, nil), nil
}

func (f *fakeCompleter) StreamResponse(_ context.Context, _ string) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("石首", nil),
		schema.AssistantMessage("鱼科", nil),
	}), nil
}

const testOrigin = "http://localhost:3000"

func setupRouter(t *testing.T, completer chatService.Completer) (*chi.Mux, string) {
	t.Helper()
	sessions := sessionService.NewService(client.New("http://127.0.0.1:0/api"), completer, identify.NewLimiter(10))
	sess, err := sessions.Create(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Use(sessionctx.Middleware(sessions))
		New(testOrigin).RegisterRoutes(r)
	})
	return r, sess.ID
}

func postQuestion(r http.Handler, sessionID, question string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"question": question})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitQuestion(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})

	resp := postQuestion(r, id, "大黄鱼属于哪个科?")
	require.Equal(t, http.StatusOK, resp.Code)

	var body submitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "答: 大黄鱼属于哪个科?", body.Entry.Answer)
	assert.Len(t, body.Conversation.Entries, 1)
	assert.Equal(t, chat.StateAnswered, body.Conversation.State)
}

func TestSubmitEmptyQuestion(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})

	resp := postQuestion(r, id, "  ")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitFailureIsRecorded(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{err: errors.New("connection refused")})

	resp := postQuestion(r, id, "hello")
	require.Equal(t, http.StatusBadGateway, resp.Code)

	var body submitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "抱歉，请求处理过程中出现错误，请稍后再试。 (connection refused)", body.Error)
	require.Len(t, body.Conversation.Entries, 1)
	assert.Equal(t, body.Error, body.Conversation.Entries[0].Answer)
}

func TestUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, &fakeCompleter{})

	resp := postQuestion(r, "non-existent", "hello")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestResetClearsConversation(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})
	require.Equal(t, http.StatusOK, postQuestion(r, id, "hello").Code)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+id+"/chat", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var snap chat.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snap))
	assert.Empty(t, snap.Entries)
}

func TestStreamEmitsDeltasThenEnd(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/chat/stream?question=%E5%A4%A7%E9%BB%84%E9%B1%BC", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(strings.NewReader(resp.Body.String()))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"start", "delta", "delta", "end"}, events)
	assert.Contains(t, resp.Body.String(), `"answer":"石首鱼科"`)
}

func TestStreamRequiresQuestion(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/chat/stream", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWebSocketQuestion(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + id + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first outgoingMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "question", Question: "带鱼"}))

	var pending outgoingMessage
	require.NoError(t, conn.ReadJSON(&pending))
	assert.Equal(t, "pending", pending.Type)

	var settled struct {
		Type string        `json:"type"`
		Data chat.Snapshot `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&settled))
	assert.Equal(t, "snapshot", settled.Type)
	require.Len(t, settled.Data.Entries, 1)
	assert.Equal(t, "答: 带鱼", settled.Data.Entries[0].Answer)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	r, id := setupRouter(t, &fakeCompleter{})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + id + "/chat/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {testOrigin}})
	require.NoError(t, err)
	defer conn.Close()

	var first outgoingMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
}
