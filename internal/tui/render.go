// Package tui renders recall's conversations, sessions, memories and
// notices for the terminal.
package tui

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/engram"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/pkg/memory"
)

const (
	defaultWidth   = 80
	snippetLength  = 72
	timestampShape = "2006-01-02 15:04"
)

type styles struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	body      lipgloss.Style
	muted     lipgloss.Style
	active    lipgloss.Style
	cell      lipgloss.Style
	border    lipgloss.Style
	levels    map[prefs.Level]lipgloss.Style
}

// Renderer formats values for one output stream. Colors degrade to plain
// text when the stream is not a terminal.
type Renderer struct {
	lr    *lipgloss.Renderer
	width int
	st    styles
}

// New builds a renderer for w. The theme picks the color set; a system
// theme lets the terminal decide. A non-positive width means 80 columns.
func New(w io.Writer, theme prefs.Theme, width int) *Renderer {
	lr := lipgloss.NewRenderer(w)
	switch theme {
	case prefs.ThemeDark:
		lr.SetHasDarkBackground(true)
	case prefs.ThemeLight:
		lr.SetHasDarkBackground(false)
	}
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{lr: lr, width: width, st: newStyles(lr)}
}

func newStyles(lr *lipgloss.Renderer) styles {
	accent := lipgloss.AdaptiveColor{Light: "125", Dark: "212"}
	muted := lipgloss.AdaptiveColor{Light: "245", Dark: "243"}
	return styles{
		header:    lr.NewStyle().Bold(true).Foreground(accent),
		user:      lr.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "27", Dark: "39"}),
		assistant: lr.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"}),
		body:      lr.NewStyle().PaddingLeft(2),
		muted:     lr.NewStyle().Foreground(muted),
		active:    lr.NewStyle().Bold(true).Foreground(accent),
		cell:      lr.NewStyle().Padding(0, 1),
		border:    lr.NewStyle().Foreground(muted),
		levels: map[prefs.Level]lipgloss.Style{
			prefs.LevelInfo:    lr.NewStyle().Foreground(lipgloss.Color("39")),
			prefs.LevelSuccess: lr.NewStyle().Foreground(lipgloss.Color("42")),
			prefs.LevelWarning: lr.NewStyle().Foreground(lipgloss.Color("214")),
			prefs.LevelError:   lr.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		},
	}
}

// Width returns the wrap width.
func (r *Renderer) Width() int { return r.width }

// Transcript renders the working conversation, one block per message.
func (r *Renderer) Transcript(p chat.Projection) string {
	var b strings.Builder
	if p.SessionID == "" {
		b.WriteString(r.st.muted.Render("(unsaved conversation)"))
		b.WriteString("\n")
	}
	if len(p.Messages) == 0 {
		b.WriteString(r.st.muted.Render("No messages yet."))
		return b.String()
	}
	for i, m := range p.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Message(m))
	}
	if p.Loading {
		b.WriteString("\n")
		b.WriteString(r.st.muted.Render("assistant is thinking..."))
	}
	return b.String()
}

// Message renders one turn with its role label.
func (r *Renderer) Message(m chat.Message) string {
	label := r.st.assistant.Render("assistant")
	if m.Role == chat.RoleUser {
		label = r.st.user.Render("you")
	}
	body := r.st.body.Width(r.width).Render(m.Content)
	return label + "\n" + body
}

// SessionHeader renders the title line shown above a transcript.
func (r *Renderer) SessionHeader(s chat.Session) string {
	meta := fmt.Sprintf("%s · %d messages · updated %s",
		s.ID, len(s.Messages), s.UpdatedAt.Local().Format(timestampShape))
	return r.st.header.Render(s.Title) + "\n" + r.st.muted.Render(meta)
}

// Sessions renders a session table with the active one marked.
func (r *Renderer) Sessions(list []chat.Session, current string) string {
	if len(list) == 0 {
		return r.st.muted.Render("No sessions.")
	}
	rows := make([][]string, 0, len(list))
	activeRow := -1
	for i, s := range list {
		mark := ""
		if s.ID == current {
			mark = "*"
			activeRow = i
		}
		rows = append(rows, []string{
			mark,
			s.ID,
			s.Title,
			strconv.Itoa(len(s.Messages)),
			s.UpdatedAt.Local().Format(timestampShape),
		})
	}
	return r.table([]string{"", "ID", "Title", "Msgs", "Updated"}, rows, func(row int) bool {
		return row == activeRow
	})
}

// Memories renders memories with their relevance when scored.
func (r *Renderer) Memories(ms []memory.Memory) string {
	if len(ms) == 0 {
		return r.st.muted.Render("No memories.")
	}
	rows := make([][]string, 0, len(ms))
	for _, m := range ms {
		score := ""
		if rel := m.Relevance(); rel >= 0 {
			score = strconv.FormatFloat(rel, 'f', 2, 64)
		}
		rows = append(rows, []string{
			m.ID,
			string(m.Modality),
			score,
			strconv.FormatFloat(m.Importance, 'f', 2, 64),
			Snippet(m.Text, snippetLength),
		})
	}
	return r.table([]string{"ID", "Type", "Score", "Imp", "Text"}, rows, nil)
}

// Context renders the memories that grounded the last reply as a short
// bulleted list.
func (r *Renderer) Context(ms []memory.Memory) string {
	if len(ms) == 0 {
		return r.st.muted.Render("No context memories.")
	}
	var b strings.Builder
	b.WriteString(r.st.header.Render(fmt.Sprintf("Context (%d)", len(ms))))
	for _, m := range ms {
		b.WriteString("\n  • ")
		b.WriteString(Snippet(m.Text, r.width-4))
		if src := m.Source(); src != "" {
			b.WriteString(" ")
			b.WriteString(r.st.muted.Render("(" + src + ")"))
		}
	}
	return b.String()
}

// Notifications renders live notices, oldest first.
func (r *Renderer) Notifications(ns []prefs.Notification) string {
	var b strings.Builder
	for i, n := range ns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Notice(n.Level, n.Text))
	}
	return b.String()
}

// Notice renders a single leveled line.
func (r *Renderer) Notice(level prefs.Level, text string) string {
	st, ok := r.st.levels[level]
	if !ok {
		st = r.st.levels[prefs.LevelInfo]
	}
	return st.Render("["+string(level)+"]") + " " + text
}

// Job renders an ingestion job's status line.
func (r *Renderer) Job(st engram.JobStatus) string {
	line := fmt.Sprintf("%s  %s  %3.0f%%", st.JobID, st.Status, st.Progress*100)
	switch {
	case st.Status == engram.JobFailed:
		msg := st.Error
		if msg == "" {
			msg = st.Message
		}
		return r.Notice(prefs.LevelError, line+"  "+msg)
	case st.Status == engram.JobCompleted:
		return r.Notice(prefs.LevelSuccess, line)
	default:
		return r.Notice(prefs.LevelInfo, line)
	}
}

// Keys renders API key records. Secrets are never part of a record.
func (r *Renderer) Keys(keys []engram.APIKey) string {
	if len(keys) == 0 {
		return r.st.muted.Render("No API keys.")
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		state := "active"
		if !k.Active {
			state = "revoked"
		}
		rows = append(rows, []string{k.ID, k.Name, strings.Join(k.Scopes, ","), state, k.LastUsedAt})
	}
	return r.table([]string{"ID", "Name", "Scopes", "State", "Last used"}, rows, nil)
}

// Sources renders the connector catalogue.
func (r *Renderer) Sources(srcs []engram.ConnectorSource) string {
	if len(srcs) == 0 {
		return r.st.muted.Render("No connectors.")
	}
	rows := make([][]string, 0, len(srcs))
	for _, s := range srcs {
		rows = append(rows, []string{s.ID, s.Name, strings.Join(s.RequiredConfig, ","), Snippet(s.Description, 48)})
	}
	return r.table([]string{"ID", "Name", "Requires", "Description"}, rows, nil)
}

// Analytics renders the usage overview.
func (r *Renderer) Analytics(a engram.AnalyticsOverview) string {
	var b strings.Builder
	b.WriteString(r.st.header.Render("Memory base"))
	fmt.Fprintf(&b, "\n  memories        %d", a.TotalMemories)
	fmt.Fprintf(&b, "\n  requests        %d (%d in last 24h)", a.TotalRequests, a.RequestsLast24h)
	fmt.Fprintf(&b, "\n  p95 latency     %.0f ms", a.P95LatencyMS)

	if len(a.MemoryTypes) > 0 {
		types := make([]string, 0, len(a.MemoryTypes))
		for t := range a.MemoryTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		b.WriteString("\n")
		b.WriteString(r.st.header.Render("By type"))
		for _, t := range types {
			fmt.Fprintf(&b, "\n  %-15s %d", t, a.MemoryTypes[t])
		}
	}
	if len(a.TopSources) > 0 {
		b.WriteString("\n")
		b.WriteString(r.st.header.Render("Top sources"))
		for _, s := range a.TopSources {
			fmt.Fprintf(&b, "\n  %5d  %s", s.Count, Snippet(s.Source, r.width-10))
		}
	}
	return b.String()
}

// Since renders a coarse age such as "3m ago".
func Since(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Snippet collapses whitespace and cuts s to at most n runes, marking the
// cut with an ellipsis.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}

func (r *Renderer) table(headers []string, rows [][]string, highlight func(row int) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.st.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.st.header.Padding(0, 1)
			case highlight != nil && highlight(row):
				return r.st.active.Padding(0, 1)
			default:
				return r.st.cell
			}
		})
	return t.String()
}
