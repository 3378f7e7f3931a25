package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
)

// View renders the current view (Bubble Tea interface).
func (m DashboardModel) View() string {
	if m.state == ViewStateQuitting {
		return ""
	}

	sections := []string{m.renderTabs(), m.renderBody(), m.renderStatusBar(), m.renderToast()}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m DashboardModel) renderBody() string {
	switch m.section {
	case SectionPools:
		return renderSection(m, m.pools)
	case SectionWorkspaces:
		return renderSection(m, m.workspaces)
	default:
		return renderSection(m, m.users)
	}
}

// renderSection shows the table once l is loaded and, until then, the
// spinner or the error that left it empty.
func renderSection[T any](m DashboardModel, l loadable.Loadable[T]) string {
	return loadable.Match(l,
		func(T) string { return m.table.View() },
		func() string {
			if m.state == ViewStateError {
				return CriticalStyle.Render(fmt.Sprintf("Error: %v", m.lastErr))
			}
			return RenderLoading(m.loadingState)
		},
	)
}

// summary counts the dashboard entities once every section is loaded.
func (m DashboardModel) summary() string {
	all := loadable.All3(m.pools, m.workspaces, m.users)
	return loadable.QuickMatch(all, "",
		func(t loadable.Tuple3[[]api.ResourcePool, []api.Workspace, []api.User]) string {
			return fmt.Sprintf("pools: %d, workspaces: %d, users: %d", len(t.First), len(t.Second), len(t.Third))
		})
}

func (m DashboardModel) renderTabs() string {
	tabs := make([]string, 0, numSections)
	for s := Section(0); s < numSections; s++ {
		if s == m.section {
			tabs = append(tabs, ActiveTabStyle.Render(s.String()))
		} else {
			tabs = append(tabs, TabStyle.Render(s.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m DashboardModel) renderStatusBar() string {
	var parts []string
	if sum := m.summary(); sum != "" {
		parts = append(parts, sum)
	}
	switch {
	case m.refreshing:
		parts = append(parts, "Refreshing...")
	case m.lastErr != nil:
		parts = append(parts, "Last refresh failed")
	}
	parts = append(parts, "Press 'tab' to switch, 'r' to refresh, 'q' to quit")
	return SubtleStyle.Render(strings.Join(parts, " | "))
}

func (m DashboardModel) renderToast() string {
	if m.toast == nil {
		return ""
	}
	return RenderNotification(*m.toast, m.width)
}

// RenderNotification renders a toast line for n.
func RenderNotification(n deterr.Notification, width int) string {
	text := n.Subject
	if n.Message != "" {
		text += ": " + n.Message
	}
	text = truncate(text, width-borderPadding)

	switch n.Level {
	case deterr.LevelWarning:
		return WarningStyle.Render("! " + text)
	default:
		return CriticalStyle.Render("x " + text)
	}
}

func truncate(s string, maxLen int) string {
	const ellipsis = "..."
	if maxLen <= len(ellipsis) || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-len(ellipsis)] + ellipsis
}

//nolint:mnd // Column widths.
func poolTable(pools []api.ResourcePool) ([]table.Column, []table.Row) {
	columns := []table.Column{
		{Title: "Name", Width: 24},
		{Title: "Type", Width: 18},
		{Title: "Agents", Width: 8},
		{Title: "Slots Used", Width: 12},
		{Title: "Slots Free", Width: 12},
		{Title: "Aux", Width: 10},
	}
	rows := make([]table.Row, 0, len(pools))
	for _, p := range pools {
		name := p.Name
		if p.DefaultComputePool {
			name += " *"
		}
		rows = append(rows, table.Row{
			name,
			strings.TrimPrefix(p.Type, "RESOURCE_POOL_TYPE_"),
			strconv.Itoa(p.NumAgents),
			fmt.Sprintf("%d/%d", p.SlotsUsed, p.SlotsAvailable),
			strconv.Itoa(p.SlotsFree()),
			fmt.Sprintf("%d/%d", p.AuxContainersRunning, p.AuxContainerCapacity),
		})
	}
	return columns, rows
}

//nolint:mnd // Column widths.
func workspaceTable(workspaces []api.Workspace) ([]table.Column, []table.Row) {
	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Name", Width: 30},
		{Title: "Owner", Width: 16},
		{Title: "Projects", Width: 10},
		{Title: "Experiments", Width: 12},
	}
	rows := make([]table.Row, 0, len(workspaces))
	for _, w := range workspaces {
		rows = append(rows, table.Row{
			strconv.Itoa(w.ID),
			truncate(w.Name, 30),
			w.Username,
			strconv.Itoa(w.NumProjects),
			strconv.Itoa(w.NumExperiments),
		})
	}
	return columns, rows
}

//nolint:mnd // Column widths.
func userTable(users []api.User) ([]table.Column, []table.Row) {
	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Username", Width: 20},
		{Title: "Display Name", Width: 24},
		{Title: "Admin", Width: 6},
		{Title: "Active", Width: 6},
	}
	rows := make([]table.Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, table.Row{
			strconv.Itoa(u.ID),
			u.Username,
			u.DisplayName,
			yesNo(u.Admin),
			yesNo(u.Active),
		})
	}
	return columns, rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
