package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
	"github.com/oceanmonitor/dashboard/internal/model/user"
	"github.com/oceanmonitor/dashboard/internal/service/chat"
	"github.com/oceanmonitor/dashboard/internal/service/identify"
	"github.com/oceanmonitor/dashboard/internal/service/predict"
	"github.com/oceanmonitor/dashboard/internal/service/users"
	"github.com/oceanmonitor/dashboard/internal/service/view"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMissingLogin    = errors.New("请输入用户名和密码")
	ErrLoginRejected   = errors.New("登录失败")
)

// LogoutRedirect is where the page goes after logout.
const LogoutRedirect = "/"

// Upstream is everything a session needs from the Ocean Monitor API.
type Upstream interface {
	view.Source
	users.Backend
	identify.Uploader
	predict.Predictor
	Login(ctx context.Context, username, password string) (*client.UserReply, error)
}

// Session 页面会话，保存当前用户与各页面状态。
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	mu        sync.RWMutex
	current   *user.CurrentUser
	lastSeen  time.Time
	workspace *Workspace
}

// CurrentUser returns a copy of the acting user, or nil when nobody is logged in.
func (s *Session) CurrentUser() *user.CurrentUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cu := *s.current
	return &cu
}

// Workspace returns the session's flows and views.
func (s *Session) Workspace() *Workspace {
	return s.workspace
}

// Touch marks the session as in use so the idle sweep keeps it.
func (s *Session) Touch() {
	s.touchAt(time.Now())
}

func (s *Session) touchAt(t time.Time) {
	s.mu.Lock()
	if t.After(s.lastSeen) {
		s.lastSeen = t
	}
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) setCurrent(cu *user.CurrentUser) {
	s.mu.Lock()
	s.current = cu
	s.mu.Unlock()
}

// Workspace groups the per-page state of one session.
type Workspace struct {
	Chat     *chat.Flow
	Identify *identify.Flow
	Predict  *predict.Flow
	Users    *users.Directory

	Fish       *view.View[ocean.FishStatistics]
	Market     *view.View[[]ocean.MarketItem]
	Weather    *view.View[[]ocean.WeatherPoint]
	AirQuality *view.View[[]ocean.AirQualityPoint]

	source      view.Source
	waterMu     sync.Mutex
	water       *view.View[view.WaterQualityPage]
	waterFilter ocean.WaterQualityFilter
}

func newWorkspace(upstream Upstream, completer chat.Completer, limiter *rate.Limiter) *Workspace {
	return &Workspace{
		Chat:       chat.NewFlow(completer),
		Identify:   identify.NewFlow(upstream, limiter),
		Predict:    predict.NewFlow(upstream),
		Users:      users.NewDirectory(upstream),
		Fish:       view.New(view.FishStatistics(upstream)),
		Market:     view.New(view.Market(upstream)),
		Weather:    view.New(view.Weather(upstream)),
		AirQuality: view.New(view.AirQuality(upstream)),
		source:     upstream,
	}
}

// WaterQuality returns the water quality view for filter. Changing the
// filter unmounts the previous view so its late results are dropped.
func (w *Workspace) WaterQuality(filter ocean.WaterQualityFilter) *view.View[view.WaterQualityPage] {
	w.waterMu.Lock()
	defer w.waterMu.Unlock()

	if w.water != nil && w.waterFilter == filter {
		return w.water
	}
	if w.water != nil {
		w.water.Close()
	}
	w.water = view.New(view.WaterQuality(w.source, filter))
	w.waterFilter = filter
	return w.water
}

// CloseWaterQuality unmounts the water quality view, if any.
func (w *Workspace) CloseWaterQuality() {
	w.waterMu.Lock()
	defer w.waterMu.Unlock()
	if w.water != nil {
		w.water.Close()
	}
}

func (w *Workspace) close() {
	w.Chat.Reset()
	w.Fish.Close()
	w.Market.Close()
	w.Weather.Close()
	w.AirQuality.Close()
	w.CloseWaterQuality()
}

// Service 管理页面会话的内存注册表。
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	upstream  Upstream
	completer chat.Completer
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewService creates an empty registry. completer may be nil when no chat
// model is configured; limiter is shared by every session's uploads.
func NewService(upstream Upstream, completer chat.Completer, limiter *rate.Limiter) *Service {
	return &Service{
		sessions:  make(map[string]*Session),
		upstream:  upstream,
		completer: completer,
		limiter:   limiter,
		now:       time.Now,
	}
}

// Create 创建新的页面会话。
func (s *Service) Create(_ context.Context) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
		lastSeen:  now,
		workspace: newWorkspace(s.upstream, s.completer, s.limiter),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Printf("[session] created %s", sess.ID)
	return sess, nil
}

// Get 获取会话。
func (s *Service) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touchAt(s.now())
	return sess, nil
}

// Login authenticates against the upstream and stores the resulting user
// in the session.
func (s *Service) Login(ctx context.Context, id, username, password string) (*user.CurrentUser, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrMissingLogin
	}

	reply, err := s.upstream.Login(ctx, username, password)
	if err != nil {
		var clientErr *client.Error
		if errors.As(err, &clientErr) && clientErr.ServerMessage != "" {
			return nil, fmt.Errorf("%w: %s", ErrLoginRejected, clientErr.ServerMessage)
		}
		return nil, err
	}
	if !reply.Success || reply.User == nil {
		reason := reply.Message
		if reason == "" {
			reason = reply.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, reason)
	}

	current := &user.CurrentUser{Username: reply.User.Username, Role: reply.User.Role}
	sess.setCurrent(current)
	log.Printf("[session] %s logged in as %s (%s)", id, current.Username, current.Role)
	return current, nil
}

// Attach sets the acting user explicitly. A nil user logs the session out
// without discarding its pages.
func (s *Service) Attach(ctx context.Context, id string, current *user.CurrentUser) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.setCurrent(current)
	return nil
}

// Logout clears the session: the conversation and any pending loads are
// discarded along with the current user. It returns the redirect target.
func (s *Service) Logout(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrSessionNotFound
	}

	sess.setCurrent(nil)
	sess.workspace.close()
	log.Printf("[session] logged out %s", id)
	return LogoutRedirect, nil
}

// Len returns the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepIdle ends every session unused for longer than idle, the same way
// Logout does, and returns how many were removed.
func (s *Service) SweepIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.setCurrent(nil)
		sess.workspace.close()
	}
	if len(expired) > 0 {
		log.Printf("[session] swept %d idle sessions", len(expired))
	}
	return len(expired)
}

// RunSweeper calls SweepIdle periodically until ctx is done. A non-positive
// idle disables it.
func (s *Service) RunSweeper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(idle)
		}
	}
}
