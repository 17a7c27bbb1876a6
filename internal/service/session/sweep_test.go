package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/model/user"
	"github.com/oceanmonitor/dashboard/internal/service/identify"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedService() (*Service, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewService(client.New("http://127.0.0.1:0/api"), nil, identify.NewLimiter(10))
	svc.now = clock.now
	return svc, clock
}

func TestSweepIdleRemovesUnusedSessions(t *testing.T) {
	svc, clock := newClockedService()
	ctx := context.Background()

	idle, err := svc.Create(ctx)
	require.NoError(t, err)
	active, err := svc.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Attach(ctx, idle.ID, &user.CurrentUser{Username: "root", Role: "admin"}))

	clock.advance(20 * time.Minute)
	_, err = svc.Get(ctx, active.ID)
	require.NoError(t, err)

	clock.advance(15 * time.Minute)
	assert.Equal(t, 1, svc.SweepIdle(30*time.Minute))
	assert.Equal(t, 1, svc.Len())

	_, err = svc.Get(ctx, idle.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Nil(t, idle.CurrentUser())

	_, err = svc.Get(ctx, active.ID)
	require.NoError(t, err)
}

func TestSweepIdleKeepsFreshSessions(t *testing.T) {
	svc, clock := newClockedService()
	_, err := svc.Create(context.Background())
	require.NoError(t, err)

	clock.advance(29 * time.Minute)
	assert.Zero(t, svc.SweepIdle(30*time.Minute))
	assert.Equal(t, 1, svc.Len())
}

func TestRunSweeperDisabled(t *testing.T) {
	svc, _ := newClockedService()

	done := make(chan struct{})
	go func() {
		svc.RunSweeper(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper with zero idle should return immediately")
	}
}
