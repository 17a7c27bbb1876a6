package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/oceanmonitor/dashboard/internal/client"
	model "github.com/oceanmonitor/dashboard/internal/model/chat"
	"github.com/oceanmonitor/dashboard/internal/service/chat"
)

type fakeCompleter struct {
	reply *schema.Message
	err   error
	calls int
}

func (f *fakeCompleter) GenerateResponse(_ context.Context, _ string) (*schema.Message, error) {
	f.calls++
	return f.reply, f.err
}

type streamingCompleter struct {
	fakeCompleter
	chunks []string
}

func (s *streamingCompleter) StreamResponse(_ context.Context, _ string) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, len(s.chunks))
	for _, c := range s.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// blockingCompleter holds the completion until release is closed.
type blockingCompleter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingCompleter) GenerateResponse(_ context.Context, _ string) (*schema.Message, error) {
	close(b.started)
	<-b.release
	return schema.AssistantMessage("late answer", nil), nil
}

func TestSubmitAnswered(t *testing.T) {
	flow := chat.NewFlow(&fakeCompleter{reply: schema.AssistantMessage("大黄鱼属于石首鱼科", nil)})

	entry, err := flow.Submit(context.Background(), "大黄鱼属于哪个科?")
	require.NoError(t, err)
	assert.Equal(t, "大黄鱼属于石首鱼科", entry.Answer)

	snap := flow.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "大黄鱼属于哪个科?", snap.Entries[0].Question)
	assert.NotEmpty(t, snap.Entries[0].Timestamp)
	assert.Equal(t, model.StateAnswered, snap.State)
	assert.Empty(t, snap.LastError)
}

func TestSubmitEmptyQuestionIsRejected(t *testing.T) {
	completer := &fakeCompleter{reply: schema.AssistantMessage("x", nil)}
	flow := chat.NewFlow(completer)

	_, err := flow.Submit(context.Background(), "   \n\t")
	require.ErrorIs(t, err, chat.ErrEmptyQuestion)
	assert.Empty(t, flow.Snapshot().Entries)
	assert.Zero(t, completer.calls)
}

func TestSubmitMalformedCompletion(t *testing.T) {
	for name, reply := range map[string]*schema.Message{
		"nil message":   nil,
		"empty content": schema.AssistantMessage("", nil),
	} {
		t.Run(name, func(t *testing.T) {
			flow := chat.NewFlow(&fakeCompleter{reply: reply})

			entry, err := flow.Submit(context.Background(), "hello")
			require.ErrorIs(t, err, chat.ErrCompletionFailed)

			want := "抱歉，请求处理过程中出现错误，请稍后再试。 (无法获取有效回复或回复格式不正确)"
			assert.Equal(t, want, entry.Answer)

			snap := flow.Snapshot()
			assert.Equal(t, want, snap.Entries[0].Answer)
			assert.Equal(t, want, snap.LastError)
			assert.Equal(t, model.StateFailed, snap.State)
		})
	}
}

func TestSubmitFailureWithStatus(t *testing.T) {
	upstreamErr := &client.Error{Message: "call failed", Status: 402, Body: `{"error":"Insufficient Balance"}`}
	flow := chat.NewFlow(&fakeCompleter{err: upstreamErr})

	entry, err := flow.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, chat.ErrCompletionFailed)
	assert.Equal(t, `抱歉，请求处理过程中出现错误，请稍后再试。 (Status: 402, Data: {"error":"Insufficient Balance"})`, entry.Answer)
}

func TestSubmitFailureFromModelAPI(t *testing.T) {
	apiErr := &arkmodel.APIError{
		Code:           "InsufficientBalance",
		Message:        "account balance is insufficient",
		Type:           "Forbidden",
		HTTPStatusCode: 402,
		RequestId:      "req-1",
	}
	flow := chat.NewFlow(&fakeCompleter{err: fmt.Errorf("failed to run AI chain: %w", apiErr)})

	entry, err := flow.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, chat.ErrCompletionFailed)
	assert.Equal(t,
		`抱歉，请求处理过程中出现错误，请稍后再试。 (Status: 402, Data: {"code":"InsufficientBalance","message":"account balance is insufficient","type":"Forbidden","request_id":"req-1"})`,
		entry.Answer)
	assert.Equal(t, entry.Answer, flow.Snapshot().LastError)
}

func TestSubmitFailureFromModelRequest(t *testing.T) {
	reqErr := arkmodel.NewRequestError(503, errors.New("upstream unavailable"), "req-2")
	flow := chat.NewFlow(&fakeCompleter{err: fmt.Errorf("failed to run AI chain: %w", reqErr)})

	entry, _ := flow.Submit(context.Background(), "hello")
	assert.Equal(t, "抱歉，请求处理过程中出现错误，请稍后再试。 (Status: 503, Data: upstream unavailable)", entry.Answer)
}

func TestSubmitFailureWithoutStatus(t *testing.T) {
	flow := chat.NewFlow(&fakeCompleter{err: errors.New("connection refused")})

	entry, _ := flow.Submit(context.Background(), "hello")
	assert.Equal(t, "抱歉，请求处理过程中出现错误，请稍后再试。 (connection refused)", entry.Answer)
}

func TestSubmitWithoutCompleter(t *testing.T) {
	flow := chat.NewFlow(nil)

	entry, err := flow.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, chat.ErrCompleterUnavailable)
	assert.Contains(t, entry.Answer, "AI 服务未配置")
}

func TestConversationGrowsByOnePerSubmission(t *testing.T) {
	completer := &fakeCompleter{reply: schema.AssistantMessage("ok", nil)}
	flow := chat.NewFlow(completer)

	for i := 1; i <= 3; i++ {
		if i == 2 {
			completer.reply, completer.err = nil, errors.New("boom")
		} else {
			completer.reply, completer.err = schema.AssistantMessage("ok", nil), nil
		}
		_, _ = flow.Submit(context.Background(), "q")

		snap := flow.Snapshot()
		require.Len(t, snap.Entries, i)
		assert.NotEmpty(t, snap.Entries[i-1].Answer)
	}

	snap := flow.Snapshot()
	assert.Equal(t, "ok", snap.Entries[0].Answer)
	assert.Contains(t, snap.Entries[1].Answer, "boom")
	assert.Equal(t, "ok", snap.Entries[2].Answer)
	assert.Empty(t, snap.LastError, "a successful submission clears the previous error")
}

func TestSubmitWhileInFlight(t *testing.T) {
	blocker := &blockingCompleter{started: make(chan struct{}), release: make(chan struct{})}
	flow := chat.NewFlow(blocker)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = flow.Submit(context.Background(), "first")
	}()
	<-blocker.started

	snap := flow.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Empty(t, snap.Entries[0].Answer)
	assert.Equal(t, model.StateSubmitting, snap.State)

	_, err := flow.Submit(context.Background(), "second")
	require.ErrorIs(t, err, chat.ErrSubmissionInFlight)

	close(blocker.release)
	wg.Wait()
	assert.Len(t, flow.Snapshot().Entries, 1)
}

func TestResetDropsLateAnswer(t *testing.T) {
	blocker := &blockingCompleter{started: make(chan struct{}), release: make(chan struct{})}
	flow := chat.NewFlow(blocker)

	errCh := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), "first")
		errCh <- err
	}()
	<-blocker.started

	flow.Reset()
	close(blocker.release)

	require.ErrorIs(t, <-errCh, chat.ErrStale)
	snap := flow.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Equal(t, model.StateIdle, snap.State)
}

func TestSubmitStreamSetsAnswerOnce(t *testing.T) {
	flow := chat.NewFlow(&streamingCompleter{chunks: []string{"东海", "带鱼"}})

	var chunks []string
	entry, err := flow.SubmitStream(context.Background(), "介绍一种鱼", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"东海", "带鱼"}, chunks)
	assert.Equal(t, "东海带鱼", entry.Answer)
	assert.Equal(t, model.StateAnswered, flow.Snapshot().State)
}

func TestSubmitStreamEmptyIsMalformed(t *testing.T) {
	flow := chat.NewFlow(&streamingCompleter{})

	entry, err := flow.SubmitStream(context.Background(), "hi", nil)
	require.ErrorIs(t, err, chat.ErrCompletionFailed)
	assert.Contains(t, entry.Answer, "无法获取有效回复或回复格式不正确")
}

func TestSubmitStreamUnsupported(t *testing.T) {
	flow := chat.NewFlow(&fakeCompleter{})

	_, err := flow.SubmitStream(context.Background(), "hi", nil)
	require.ErrorIs(t, err, chat.ErrStreamingUnsupported)
	assert.Empty(t, flow.Snapshot().Entries)
}
