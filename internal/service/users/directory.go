// Package users runs the user list page: fetch, and the admin-gated delete
// and edit actions. Non-admins are stopped before any request; the operator
// is still sent so the upstream can check it again.
package users

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
	"github.com/oceanmonitor/dashboard/internal/model/user"
)

const (
	msgBadFormat      = "获取用户数据格式不正确"
	msgFetchFailed    = "获取用户数据失败: "
	msgDeleteDenied   = "只有管理员才能删除用户"
	msgEditDenied     = "只有管理员才能修改用户信息"
	msgDeleteFallback = "删除失败，请稍后重试"
	msgUpdateFallback = "修改失败，请稍后重试"
	msgUserNotFound   = "用户未找到"
)

var (
	ErrBadFormat = errors.New(msgBadFormat)
	ErrNotAdmin  = errors.New("acting user is not an administrator")
	ErrNotFound  = errors.New(msgUserNotFound)
)

// Backend is the slice of the upstream API the directory uses.
type Backend interface {
	Users(ctx context.Context) (*ocean.Envelope[[]user.User], error)
	GetUser(ctx context.Context, username string) (*client.UserReply, error)
	DeleteUser(ctx context.Context, username string, operator user.CurrentUser) (*client.MessageReply, error)
	UpdateUser(ctx context.Context, username string, changes user.Update, operatorRole string) (*client.UserReply, error)
}

// ActionResult is what the page shows after delete or edit: a blocking
// alert and, for edit, the route to navigate to.
type ActionResult struct {
	Alert    string `json:"alert"`
	Redirect string `json:"redirect,omitempty"`
}

// Snapshot is the list as currently rendered.
type Snapshot struct {
	Users []user.User `json:"users"`
	Error string      `json:"error,omitempty"`
}

// Directory holds one page's user list.
type Directory struct {
	mu      sync.Mutex
	backend Backend
	users   []user.User
	errMsg  string
}

// NewDirectory creates an empty list.
func NewDirectory(backend Backend) *Directory {
	return &Directory{backend: backend, users: []user.User{}}
}

// Fetch replaces the list with the upstream copy. Any unexpected shape
// empties the list instead of leaving stale rows.
func (d *Directory) Fetch(ctx context.Context) ([]user.User, error) {
	resp, err := d.backend.Users(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case errors.Is(err, client.ErrMalformedResponse):
		return d.clear(msgBadFormat, ErrBadFormat)
	case err != nil:
		return d.clear(msgFetchFailed+failureDetail(err), err)
	case resp == nil || !resp.Success || resp.Data == nil:
		log.Printf("[users] unexpected list response: %+v", resp)
		return d.clear(msgBadFormat, ErrBadFormat)
	}

	d.users = append([]user.User(nil), resp.Data...)
	d.errMsg = ""
	return d.copyUsers(), nil
}

// Get loads one user for the edit view.
func (d *Directory) Get(ctx context.Context, username string) (*user.User, error) {
	reply, err := d.backend.GetUser(ctx, username)
	if err != nil {
		var clientErr *client.Error
		if errors.As(err, &clientErr) && clientErr.Status == 404 {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !reply.Success || reply.User == nil {
		return nil, ErrNotFound
	}
	return reply.User, nil
}

// Delete removes username on behalf of current. Non-admins are stopped
// before any request. On success the list is fetched again.
func (d *Directory) Delete(ctx context.Context, current *user.CurrentUser, username string) (ActionResult, error) {
	if !current.IsAdmin() {
		return ActionResult{Alert: msgDeleteDenied}, ErrNotAdmin
	}

	reply, err := d.backend.DeleteUser(ctx, username, *current)
	if err != nil {
		return ActionResult{Alert: serverMessageOr(err, msgDeleteFallback)}, err
	}

	if _, err := d.Fetch(ctx); err != nil {
		log.Printf("[users] refetch after delete failed: %v", err)
	}
	return ActionResult{Alert: reply.Message}, nil
}

// Edit applies the same gate as Delete and returns the edit route.
func (d *Directory) Edit(current *user.CurrentUser, username string) (ActionResult, error) {
	if !current.IsAdmin() {
		return ActionResult{Alert: msgEditDenied}, ErrNotAdmin
	}
	return ActionResult{
		Alert:    "跳转到修改页面，用户用户名: " + username,
		Redirect: "/edit-user/" + url.PathEscape(username),
	}, nil
}

// Update submits the edit form.
func (d *Directory) Update(ctx context.Context, current *user.CurrentUser, username string, changes user.Update) (*user.User, ActionResult, error) {
	if !current.IsAdmin() {
		return nil, ActionResult{Alert: msgEditDenied}, ErrNotAdmin
	}

	reply, err := d.backend.UpdateUser(ctx, username, changes, current.Role)
	if err != nil {
		return nil, ActionResult{Alert: serverMessageOr(err, msgUpdateFallback)}, err
	}
	return reply.User, ActionResult{Alert: reply.Message, Redirect: "/user"}, nil
}

// Snapshot returns the list as currently held.
func (d *Directory) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{Users: d.copyUsers(), Error: d.errMsg}
}

func (d *Directory) clear(msg string, err error) ([]user.User, error) {
	d.users = []user.User{}
	d.errMsg = msg
	return nil, err
}

func (d *Directory) copyUsers() []user.User {
	return append([]user.User{}, d.users...)
}

func serverMessageOr(err error, fallback string) string {
	var clientErr *client.Error
	if errors.As(err, &clientErr) && clientErr.ServerMessage != "" {
		return clientErr.ServerMessage
	}
	return fallback
}

func failureDetail(err error) string {
	var clientErr *client.Error
	if errors.As(err, &clientErr) {
		return clientErr.Detail()
	}
	return err.Error()
}
