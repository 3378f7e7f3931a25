package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
)

func update(t *testing.T, m DashboardModel, msg tea.Msg) (DashboardModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	dm, ok := next.(DashboardModel)
	require.True(t, ok)
	return dm, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestNewDashboardModel(t *testing.T) {
	m := NewDashboardModel(context.Background(), nil)

	assert.Equal(t, ViewStateLoading, m.State())
	assert.Equal(t, SectionPools, m.Section())
	assert.NotNil(t, m.Init(), "spinner starts")
	assert.Contains(t, m.View(), "Loading...")
	assert.Contains(t, m.View(), "Resource Pools")
}

func TestDashboardSectionsFollowLoadables(t *testing.T) {
	m := NewDashboardModel(context.Background(), nil)

	m, _ = update(t, m, PoolsMsg{Pools: loadable.Loaded([]api.ResourcePool{
		{Name: "default", NumAgents: 2, SlotsAvailable: 8, SlotsUsed: 3, DefaultComputePool: true},
	})})
	assert.Equal(t, ViewStateList, m.State())
	view := m.View()
	assert.Contains(t, view, "default *")
	assert.Contains(t, view, "3/8")

	// workspaces are still NotLoaded
	m, cmd := update(t, m, key("tab"))
	assert.Equal(t, SectionWorkspaces, m.Section())
	assert.Equal(t, ViewStateLoading, m.State())
	assert.NotNil(t, cmd, "spinner restarts")

	m, _ = update(t, m, WorkspacesMsg{Workspaces: loadable.Loaded([]api.Workspace{{ID: 7, Name: "research", NumProjects: 2}})})
	assert.Equal(t, ViewStateList, m.State())
	assert.Contains(t, m.View(), "research")

	m, _ = update(t, m, key("shift+tab"))
	assert.Equal(t, SectionPools, m.Section())
	assert.Equal(t, ViewStateList, m.State())

	m, _ = update(t, m, key("shift+tab"))
	assert.Equal(t, SectionUsers, m.Section())
	assert.Equal(t, ViewStateLoading, m.State())

	m, _ = update(t, m, UsersMsg{Users: loadable.Loaded([]api.User{{ID: 1, Username: "admin", Admin: true}})})
	assert.Contains(t, m.View(), "admin")
	assert.Contains(t, m.View(), "pools: 1, workspaces: 1, users: 1", "summary once every section is loaded")

	t.Run("invalidated section shows the spinner again", func(t *testing.T) {
		m, _ := update(t, m, UsersMsg{Users: loadable.NotLoaded[[]api.User]()})
		assert.Equal(t, ViewStateLoading, m.State())
	})
}

func TestDashboardRefresh(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	refresh := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	}
	m := NewDashboardModel(context.Background(), refresh)

	m, cmd := update(t, m, key("r"))
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Refreshing...")

	again, noop := update(t, m, key("r"))
	assert.Nil(t, noop, "one refresh at a time")

	m, _ = update(t, again, cmd())
	assert.Equal(t, 1, calls)
	assert.Contains(t, m.View(), "Last refresh failed")
	assert.NotContains(t, m.View(), "pools:")

	t.Run("empty section shows the error", func(t *testing.T) {
		assert.Equal(t, ViewStateError, m.State())
		assert.Contains(t, m.View(), "Error: boom")
	})

	t.Run("retry shows the spinner again", func(t *testing.T) {
		retry, cmd := update(t, m, key("r"))
		require.NotNil(t, cmd)
		assert.Equal(t, ViewStateLoading, retry.State())
		assert.NotContains(t, retry.View(), "Error: boom")
	})

	t.Run("data replaces the error", func(t *testing.T) {
		loaded, _ := update(t, m, PoolsMsg{Pools: loadable.Loaded([]api.ResourcePool{{Name: "default"}})})
		assert.Equal(t, ViewStateList, loaded.State())
		assert.NotContains(t, loaded.View(), "Error: boom")
	})

	t.Run("a loaded section ignores the failure", func(t *testing.T) {
		other, _ := update(t, m, UsersMsg{Users: loadable.Loaded([]api.User{{ID: 1, Username: "admin"}})})
		other, _ = update(t, other, key("shift+tab"))
		assert.Equal(t, SectionUsers, other.Section())
		assert.Equal(t, ViewStateList, other.State())
	})
}

func TestDashboardToast(t *testing.T) {
	m := NewDashboardModel(context.Background(), nil)

	m, cmd := update(t, m, ToastMsg{Notification: deterr.Notification{
		Level:   deterr.LevelError,
		Subject: "Unable to fetch users",
		Message: "boom",
	}})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Unable to fetch users: boom")

	m, _ = update(t, m, ToastMsg{Notification: deterr.Notification{Level: deterr.LevelWarning, Subject: "second"}})
	assert.Contains(t, m.View(), "! second")

	// an expired earlier toast does not hide the newer one
	m, _ = update(t, m, toastExpiredMsg{id: 1})
	assert.Contains(t, m.View(), "second")
	m, _ = update(t, m, toastExpiredMsg{id: 2})
	assert.NotContains(t, m.View(), "second")
}

func TestDashboardQuit(t *testing.T) {
	t.Run("q", func(t *testing.T) {
		m := NewDashboardModel(context.Background(), nil)
		m, cmd := update(t, m, key("q"))
		assert.Equal(t, ViewStateQuitting, m.State())
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.Empty(t, m.View())
		assert.Empty(t, m.ExitMessage())
	})

	t.Run("session expired", func(t *testing.T) {
		m := NewDashboardModel(context.Background(), nil)
		m, cmd := update(t, m, SessionExpiredMsg{Path: "/logout"})
		assert.Equal(t, ViewStateQuitting, m.State())
		require.NotNil(t, cmd)
		assert.Contains(t, m.ExitMessage(), "Session expired")

		m, _ = update(t, m, PoolsMsg{Pools: loadable.Loaded([]api.ResourcePool{})})
		assert.Equal(t, ViewStateQuitting, m.State(), "late data does not revive the view")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abc", 2))
}
