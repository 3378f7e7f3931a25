package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
)

// DefaultToastTTL is how long a notification stays on screen.
const DefaultToastTTL = 5 * time.Second

// Section is one tab of the dashboard.
type Section int

const (
	SectionPools Section = iota
	SectionWorkspaces
	SectionUsers
	numSections
)

func (s Section) String() string {
	switch s {
	case SectionPools:
		return "Resource Pools"
	case SectionWorkspaces:
		return "Workspaces"
	case SectionUsers:
		return "Users"
	default:
		return "Unknown"
	}
}

// PoolsMsg carries a new resource pool entry.
type PoolsMsg struct{ Pools loadable.Loadable[[]api.ResourcePool] }

// WorkspacesMsg carries a new workspace list entry.
type WorkspacesMsg struct{ Workspaces loadable.Loadable[[]api.Workspace] }

// UsersMsg carries a new user list entry.
type UsersMsg struct{ Users loadable.Loadable[[]api.User] }

// ToastMsg shows a notification.
type ToastMsg struct{ Notification deterr.Notification }

// SessionExpiredMsg ends the dashboard after an auth failure.
type SessionExpiredMsg struct{ Path string }

type refreshDoneMsg struct{ err error }

type toastExpiredMsg struct{ id int }

// RefreshFunc reloads the dashboard data. Failures are already reported to
// the error handler, so the dashboard only uses the result for its status bar.
type RefreshFunc func(ctx context.Context) error

// DashboardModel is the Bubble Tea model for the cluster dashboard.
//
//nolint:recvcheck // Bubble Tea requires value receivers for Init/Update/View interface methods.
type DashboardModel struct {
	state ViewState
	ctx   context.Context

	pools      loadable.Loadable[[]api.ResourcePool]
	workspaces loadable.Loadable[[]api.Workspace]
	users      loadable.Loadable[[]api.User]

	section Section
	table   table.Model
	width   int
	height  int

	refresh    RefreshFunc
	refreshing bool
	lastErr    error

	toast    *deterr.Notification
	toastID  int
	toastTTL time.Duration

	loadingState *LoadingState
	exitMessage  string
}

// NewDashboardModel creates the dashboard. refresh may be nil.
func NewDashboardModel(ctx context.Context, refresh RefreshFunc) DashboardModel {
	m := DashboardModel{
		state:        ViewStateLoading,
		ctx:          ctx,
		pools:        loadable.NotLoaded[[]api.ResourcePool](),
		workspaces:   loadable.NotLoaded[[]api.Workspace](),
		users:        loadable.NotLoaded[[]api.User](),
		width:        defaultWidth,
		height:       defaultHeight,
		refresh:      refresh,
		toastTTL:     DefaultToastTTL,
		loadingState: NewLoadingState(),
	}
	m.rebuildTable()
	return m
}

// Init starts the spinner and the first load.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.loadingState.Init(), m.refreshCmd())
}

// Update handles messages and updates the model state (Bubble Tea interface).
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rebuildTable()
		return m, nil

	case PoolsMsg:
		m.pools = msg.Pools
		return m.dataChanged(SectionPools)
	case WorkspacesMsg:
		m.workspaces = msg.Workspaces
		return m.dataChanged(SectionWorkspaces)
	case UsersMsg:
		m.users = msg.Users
		return m.dataChanged(SectionUsers)

	case refreshDoneMsg:
		m.refreshing = false
		m.lastErr = msg.err
		cmd := m.syncState()
		return m, cmd

	case ToastMsg:
		m.toastID++
		n := msg.Notification
		m.toast = &n
		id := m.toastID
		return m, tea.Tick(m.toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
	case toastExpiredMsg:
		if msg.id == m.toastID {
			m.toast = nil
		}
		return m, nil

	case SessionExpiredMsg:
		m.state = ViewStateQuitting
		m.exitMessage = fmt.Sprintf("Session expired. Run 'detconsole login' to sign in again (%s).", msg.Path)
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKeypress(msg)
	}

	if m.state == ViewStateLoading {
		return m, m.loadingState.Update(msg)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m DashboardModel) handleKeypress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.state = ViewStateQuitting
		return m, tea.Quit
	case "r":
		if m.refreshing {
			return m, nil
		}
		cmd := m.refreshCmd()
		if spin := m.syncState(); spin != nil {
			cmd = tea.Batch(cmd, spin)
		}
		return m, cmd
	case "tab", "right", "l":
		return m.switchSection((m.section + 1) % numSections)
	case "shift+tab", "left", "h":
		return m.switchSection((m.section + numSections - 1) % numSections)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m DashboardModel) switchSection(s Section) (tea.Model, tea.Cmd) {
	m.section = s
	m.rebuildTable()
	cmd := m.syncState()
	return m, cmd
}

func (m DashboardModel) dataChanged(s Section) (tea.Model, tea.Cmd) {
	if s == m.section {
		m.rebuildTable()
	}
	cmd := m.syncState()
	return m, cmd
}

// syncState follows the active section: List once it is Loaded, Error when
// it is NotLoaded after a failed refresh, Loading otherwise. Entering Loading
// restarts the spinner.
func (m *DashboardModel) syncState() tea.Cmd {
	if m.state == ViewStateQuitting {
		return nil
	}
	if m.activeLoaded() {
		m.state = ViewStateList
		return nil
	}
	if m.lastErr != nil && !m.refreshing {
		m.state = ViewStateError
		return nil
	}
	if m.state != ViewStateLoading {
		m.state = ViewStateLoading
		return m.loadingState.Init()
	}
	return nil
}

func (m *DashboardModel) refreshCmd() tea.Cmd {
	if m.refresh == nil {
		return nil
	}
	m.refreshing = true
	ctx, refresh := m.ctx, m.refresh
	return func() tea.Msg {
		return refreshDoneMsg{err: refresh(ctx)}
	}
}

func (m DashboardModel) activeLoaded() bool {
	switch m.section {
	case SectionPools:
		return m.pools.IsLoaded()
	case SectionWorkspaces:
		return m.workspaces.IsLoaded()
	case SectionUsers:
		return m.users.IsLoaded()
	default:
		return false
	}
}

// Section returns the active tab.
func (m DashboardModel) Section() Section {
	return m.section
}

// State returns the current view state.
func (m DashboardModel) State() ViewState {
	return m.state
}

// ExitMessage is printed after the program ends, empty on a normal quit.
func (m DashboardModel) ExitMessage() string {
	return m.exitMessage
}

func (m *DashboardModel) rebuildTable() {
	height := m.height - tableChrome
	if height < 3 {
		height = 3
	}

	var columns []table.Column
	var rows []table.Row
	switch m.section {
	case SectionPools:
		columns, rows = poolTable(loadable.GetOrElse(nil, m.pools))
	case SectionWorkspaces:
		columns, rows = workspaceTable(loadable.GetOrElse(nil, m.workspaces))
	case SectionUsers:
		columns, rows = userTable(loadable.GetOrElse(nil, m.users))
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	s := table.DefaultStyles()
	s.Header = TableHeaderStyle
	s.Selected = TableSelectedStyle
	t.SetStyles(s)
	m.table = t
}
