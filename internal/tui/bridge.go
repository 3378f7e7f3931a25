package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
	"github.com/rshade/detconsole/internal/stores"
)

// DashboardPath is the path reported to the error handler while the
// dashboard runs.
const DashboardPath = "/dashboard"

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bind forwards store changes to the program as messages. The returned
// function stops forwarding.
func Bind(p Sender, svc *stores.Services) (unbind func()) {
	unsubs := []func(){
		svc.ResourcePools.Subscribe(func(l loadable.Loadable[[]api.ResourcePool]) { p.Send(PoolsMsg{Pools: l}) }),
		svc.Workspaces.Subscribe(func(l loadable.Loadable[[]api.Workspace]) { p.Send(WorkspacesMsg{Workspaces: l}) }),
		svc.Users.Subscribe(func(l loadable.Loadable[[]api.User]) { p.Send(UsersMsg{Users: l}) }),
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
		})
	}
}

// Seed copies the current store entries into m, for entries loaded before
// the program starts.
func Seed(m DashboardModel, svc *stores.Services) DashboardModel {
	m.pools = svc.ResourcePools.Get()
	m.workspaces = svc.Workspaces.Get()
	m.users = svc.Users.Get()
	m.rebuildTable()
	m.syncState()
	return m
}

// Notifier shows handler notifications as dashboard toasts.
type Notifier struct {
	p Sender
}

// NewNotifier creates a Notifier for p.
func NewNotifier(p Sender) *Notifier {
	return &Notifier{p: p}
}

// Notify implements deterr.Notifier.
func (n *Notifier) Notify(_ context.Context, note deterr.Notification) {
	n.p.Send(ToastMsg{Notification: note})
}

// Navigator ends the dashboard when the handler redirects to logout.
type Navigator struct {
	p       Sender
	onLeave func(path string)

	mu   sync.Mutex
	path string
}

// NewNavigator creates a Navigator for p positioned on DashboardPath.
// onLeave, when set, runs before the dashboard is told to quit; the console
// uses it to forget the expired session.
func NewNavigator(p Sender, onLeave func(path string)) *Navigator {
	return &Navigator{p: p, onLeave: onLeave, path: DashboardPath}
}

// CurrentPath implements deterr.Navigator.
func (n *Navigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Navigate implements deterr.Navigator.
func (n *Navigator) Navigate(path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
	if n.onLeave != nil {
		n.onLeave(path)
	}
	n.p.Send(SessionExpiredMsg{Path: path})
}
