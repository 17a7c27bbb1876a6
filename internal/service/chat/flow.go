// Package chat accumulates a page conversation and drives its
// submit → answered/failed cycle against a completion backend.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/oceanmonitor/dashboard/internal/model/chat"
)

const (
	failurePrefix    = "抱歉，请求处理过程中出现错误，请稍后再试。"
	malformedMessage = "无法获取有效回复或回复格式不正确"
	timestampLayout  = "2006-01-02T15:04:05.000Z"
)

var (
	ErrEmptyQuestion        = errors.New("question is empty")
	ErrSubmissionInFlight   = errors.New("a question is already being answered")
	ErrCompletionFailed     = errors.New("completion failed")
	ErrStreamingUnsupported = errors.New("streaming completion unavailable")
	ErrCompleterUnavailable = errors.New("AI 服务未配置")
	// ErrStale reports that the conversation was reset while the answer was in flight.
	ErrStale = errors.New("conversation was reset before the answer arrived")

	errMalformedCompletion = errors.New(malformedMessage)
)

// Completer produces one answer for a question.
type Completer interface {
	GenerateResponse(ctx context.Context, question string) (*schema.Message, error)
}

// StreamCompleter produces an answer as a stream of chunks.
type StreamCompleter interface {
	StreamResponse(ctx context.Context, question string) (*schema.StreamReader[*schema.Message], error)
}

// statusError is implemented by errors that carry an HTTP reply.
type statusError interface {
	StatusCode() int
	ResponseBody() string
}

// Flow owns one page's conversation. Entries are only appended; the answer
// of the newest entry is written exactly once per submission.
type Flow struct {
	mu         sync.Mutex
	completer  Completer
	entries    []chat.Entry
	state      chat.State
	lastError  string
	generation uint64
	now        func() time.Time
}

// NewFlow creates an idle conversation. completer may be nil, in which case
// every submission fails with a visible error.
func NewFlow(completer Completer) *Flow {
	return &Flow{
		completer: completer,
		entries:   make([]chat.Entry, 0, 16),
		state:     chat.StateIdle,
		now:       time.Now,
	}
}

// Submit appends a question and waits for its answer. A completion failure
// is recorded in the conversation and reported as ErrCompletionFailed.
func (f *Flow) Submit(ctx context.Context, input string) (chat.Entry, error) {
	token, err := f.begin(input)
	if err != nil {
		return chat.Entry{}, err
	}

	if f.completer == nil {
		return f.fail(token, ErrCompleterUnavailable)
	}

	msg, err := f.completer.GenerateResponse(ctx, input)
	if err != nil {
		return f.fail(token, err)
	}
	if msg == nil || msg.Content == "" {
		return f.fail(token, errMalformedCompletion)
	}
	return f.finish(token, msg.Content, chat.StateAnswered, "")
}

// SubmitStream is Submit with incremental delivery: onChunk sees every piece
// as it arrives, while the entry's answer is still written once at the end.
func (f *Flow) SubmitStream(ctx context.Context, input string, onChunk func(string) error) (chat.Entry, error) {
	streamer, ok := f.completer.(StreamCompleter)
	if !ok {
		return chat.Entry{}, ErrStreamingUnsupported
	}

	token, err := f.begin(input)
	if err != nil {
		return chat.Entry{}, err
	}

	stream, err := streamer.StreamResponse(ctx, input)
	if err != nil {
		return f.fail(token, err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return f.fail(token, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if onChunk != nil {
			if err := onChunk(chunk.Content); err != nil {
				return f.fail(token, err)
			}
		}
	}

	if builder.Len() == 0 {
		return f.fail(token, errMalformedCompletion)
	}
	return f.finish(token, builder.String(), chat.StateAnswered, "")
}

// Snapshot returns a copy of the conversation.
func (f *Flow) Snapshot() chat.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]chat.Entry, len(f.entries))
	copy(entries, f.entries)
	return chat.Snapshot{
		Entries:   entries,
		State:     f.state,
		LastError: f.lastError,
	}
}

// Reset discards the conversation. An answer still in flight is dropped
// when it arrives.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	f.entries = make([]chat.Entry, 0, 16)
	f.state = chat.StateIdle
	f.lastError = ""
}

// submission identifies the entry a pending answer belongs to.
type submission struct {
	generation uint64
	index      int
}

func (f *Flow) begin(input string) (submission, error) {
	if strings.TrimSpace(input) == "" {
		return submission{}, ErrEmptyQuestion
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == chat.StateSubmitting {
		return submission{}, ErrSubmissionInFlight
	}

	f.entries = append(f.entries, chat.Entry{
		Question:  input,
		Timestamp: f.now().UTC().Format(timestampLayout),
	})
	f.lastError = ""
	f.state = chat.StateSubmitting
	return submission{generation: f.generation, index: len(f.entries) - 1}, nil
}

func (f *Flow) fail(token submission, cause error) (chat.Entry, error) {
	log.Printf("[chat] completion failed: %v", cause)
	detail := describeFailure(cause)
	entry, err := f.finish(token, detail, chat.StateFailed, detail)
	if err != nil {
		return entry, err
	}
	return entry, fmt.Errorf("%w: %w", ErrCompletionFailed, cause)
}

func (f *Flow) finish(token submission, answer string, state chat.State, lastError string) (chat.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if token.generation != f.generation {
		return chat.Entry{}, ErrStale
	}

	f.entries[token.index].Answer = answer
	f.state = state
	f.lastError = lastError
	return f.entries[token.index], nil
}

// describeFailure builds the text shown both as the answer and in the
// error panel.
func describeFailure(err error) string {
	if status, data, ok := failureReply(err); ok {
		return fmt.Sprintf("%s (Status: %d, Data: %s)", failurePrefix, status, data)
	}
	return fmt.Sprintf("%s (%s)", failurePrefix, err.Error())
}

// failureReply extracts the HTTP status and body of a failed model call.
func failureReply(err error) (int, string, bool) {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		body, marshalErr := json.Marshal(apiErr)
		if marshalErr != nil {
			return apiErr.HTTPStatusCode, apiErr.Message, true
		}
		return apiErr.HTTPStatusCode, string(body), true
	}

	var reqErr *arkmodel.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		data := ""
		if reqErr.Err != nil {
			data = reqErr.Err.Error()
		}
		return reqErr.HTTPStatusCode, data, true
	}

	var se statusError
	if errors.As(err, &se) && se.StatusCode() != 0 {
		return se.StatusCode(), se.ResponseBody(), true
	}
	return 0, "", false
}
