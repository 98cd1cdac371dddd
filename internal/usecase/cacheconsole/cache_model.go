package cacheconsole

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/usecase/fetchcache"
)

const maxShownKeys = 20
const maxAuditLines = 8
const maxDetailChars = 800

type Options struct {
	Prefix          string
	RefreshInterval time.Duration
}

type cacheModel struct {
	ctx             context.Context
	service         *fetchcache.Service
	prefix          string
	refreshInterval time.Duration

	keys          []string
	selectedIndex int
	detailKey     string
	detailValue   string
	hasDetail     bool
	status        string
	auditLogs     []string
}

type keysLoadedMsg struct {
	keys []string
	err  error
}

type valueLoadedMsg struct {
	key   string
	value string
	found bool
	err   error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action string
	key    string
	result string
	err    error
}

func NewCacheModel(ctx context.Context, service *fetchcache.Service, options Options) tea.Model {
	prefix := strings.TrimSpace(options.Prefix)
	if prefix == "" {
		prefix = service.KeyPrefix()
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &cacheModel{
		ctx:             ctx,
		service:         service,
		prefix:          prefix,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *cacheModel) Init() tea.Cmd {
	return tea.Batch(m.loadKeysCmd(), m.tickCmd())
}

func (m *cacheModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadKeysCmd(), m.tickCmd())
	case keysLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.keys = msg.keys
		if len(m.keys) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.status = "store is empty"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.keys) {
			m.selectedIndex = len(m.keys) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d keys", len(m.keys))
		return m, m.loadSelectedValueCmd()
	case valueLoadedMsg:
		if !m.isCurrentSelectedKey(msg.key) {
			return m, nil
		}
		if msg.err != nil {
			m.hasDetail = false
			m.status = "value load failed: " + msg.err.Error()
			return m, nil
		}
		m.hasDetail = msg.found
		m.detailKey = msg.key
		m.detailValue = msg.value
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendAuditLog(msg.action, msg.key, "failed", msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendAuditLog(msg.action, msg.key, msg.result, nil)
		}
		return m, m.loadKeysCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadKeysCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSelectedValueCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.keys)-1 {
				m.selectedIndex++
				return m, m.loadSelectedValueCmd()
			}
			return m, nil
		case "d":
			return m, m.invalidateCmd()
		case "r":
			return m, m.refetchCmd()
		}
	}
	return m, nil
}

func (m *cacheModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Cache Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"prefix=%s refresh=%s",
		m.prefix,
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Keys"))
	builder.WriteString("\n")
	if len(m.keys) == 0 {
		builder.WriteString(dimStyle.Render("- no cached keys"))
		builder.WriteString("\n\n")
	} else {
		shown := m.keys
		if len(shown) > maxShownKeys {
			shown = shown[:maxShownKeys]
		}
		for index, key := range shown {
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + key))
			} else {
				builder.WriteString("  " + key)
			}
			builder.WriteString("\n")
		}
		if len(m.keys) > maxShownKeys {
			builder.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(m.keys)-maxShownKeys)))
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Value"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no value"))
		builder.WriteString("\n\n")
	} else {
		builder.WriteString(fmt.Sprintf("Key: %s\n", m.detailKey))
		builder.WriteString(truncateValue(prettyJSON(m.detailValue), maxDetailChars))
		builder.WriteString("\n\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Audit Log"))
	builder.WriteString("\n")
	if len(m.auditLogs) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  r refetch  d invalidate  q quit"))
	return builder.String()
}

func (m *cacheModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *cacheModel) loadKeysCmd() tea.Cmd {
	return func() tea.Msg {
		keys, err := m.service.Keys(m.ctx, m.prefix, 500)
		if err != nil {
			return keysLoadedMsg{err: err}
		}
		return keysLoadedMsg{keys: keys}
	}
}

func (m *cacheModel) loadSelectedValueCmd() tea.Cmd {
	selected, ok := m.selectedKey()
	if !ok {
		return nil
	}

	return func() tea.Msg {
		value, found, err := m.service.Get(m.ctx, selected)
		if err != nil {
			return valueLoadedMsg{key: selected, err: err}
		}
		if !found {
			return valueLoadedMsg{key: selected}
		}

		raw, err := json.Marshal(value)
		if err != nil {
			return valueLoadedMsg{key: selected, err: err}
		}
		return valueLoadedMsg{key: selected, value: string(raw), found: true}
	}
}

func (m *cacheModel) invalidateCmd() tea.Cmd {
	selected, ok := m.selectedKey()
	if !ok {
		m.status = "no key selected"
		return nil
	}
	m.status = "invalidating..."
	return func() tea.Msg {
		deleted, err := m.service.Invalidate(m.ctx, selected)
		if err != nil {
			return actionDoneMsg{action: "invalidate", key: selected, err: err}
		}
		result := "not found"
		if deleted {
			result = "removed"
		}
		return actionDoneMsg{action: "invalidate", key: selected, result: result}
	}
}

// refetchCmd drops the entry and resolves the endpoint again, so the next
// view shows the fresh payload. Keys outside the endpoint prefix only get
// invalidated.
func (m *cacheModel) refetchCmd() tea.Cmd {
	selected, ok := m.selectedKey()
	if !ok {
		m.status = "no key selected"
		return nil
	}
	m.status = "refetching..."
	return func() tea.Msg {
		endpointKey, ok := strings.CutPrefix(selected, m.service.KeyPrefix())
		if !ok {
			return actionDoneMsg{action: "refetch", key: selected, err: fmt.Errorf("key %q is not an endpoint entry", selected)}
		}

		if _, err := m.service.Invalidate(m.ctx, selected); err != nil {
			return actionDoneMsg{action: "refetch", key: selected, err: err}
		}

		result, err := m.service.Endpoint(m.ctx, endpointKey)
		if err != nil {
			return actionDoneMsg{action: "refetch", key: selected, err: err}
		}

		outcome := "fetched"
		if result.Stale {
			outcome = "stale fallback"
		}
		return actionDoneMsg{action: "refetch", key: selected, result: outcome}
	}
}

func (m *cacheModel) selectedKey() (string, bool) {
	if len(m.keys) == 0 {
		return "", false
	}
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.keys) {
		return "", false
	}
	return m.keys[m.selectedIndex], true
}

func (m *cacheModel) isCurrentSelectedKey(key string) bool {
	selected, ok := m.selectedKey()
	if !ok {
		return false
	}
	return selected == key
}

func (m *cacheModel) appendAuditLog(action string, key string, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s key=%s action=%s result=%s", timestamp, key, action, outcome)
	m.auditLogs = append([]string{line}, m.auditLogs...)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[:maxAuditLines]
	}

	logging.Info(m.ctx, "cache console action",
		slog.String("time", timestamp),
		slog.String("key", key),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

func prettyJSON(value string) string {
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return value
	}
	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return value
	}
	return string(pretty)
}

func truncateValue(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "\n... (truncated)"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}
