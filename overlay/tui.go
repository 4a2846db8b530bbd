package overlay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/dictation"
)

type (
	visibleMsg bool
	stateMsg   State
	tickMsg    time.Time
)

// precomputed so View does not allocate styles per pixel
var (
	pixelColorsActive = []string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"}
	pixelColorsIdle   = []string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"}
	stylesActive      [16]lipgloss.Style
	stylesIdle        [16]lipgloss.Style
	bgActive          [16][16]lipgloss.Style
	bgIdle            [16][16]lipgloss.Style
)

func init() {
	fill := func(colors []string, fg *[16]lipgloss.Style, bg *[16][16]lipgloss.Style) {
		for i, c := range colors {
			if c == "" {
				continue
			}
			fg[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
			for j, b := range colors {
				if b != "" {
					bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Background(lipgloss.Color(b))
				}
			}
		}
	}
	fill(pixelColorsActive, &stylesActive, &bgActive)
	fill(pixelColorsIdle, &stylesIdle, &bgIdle)
}

// TUI is the terminal indicator. It owns the terminal while Run is active.
type TUI struct {
	info Info

	mu      sync.Mutex
	program *tea.Program
}

func NewTUI(info Info) *TUI {
	return &TUI{info: info}
}

func (t *TUI) send(msg tea.Msg) {
	t.mu.Lock()
	p := t.program
	t.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (t *TUI) Show() error    { t.send(visibleMsg(true)); return nil }
func (t *TUI) Hide() error    { t.send(visibleMsg(false)); return nil }
func (t *TUI) Update(s State) { t.send(stateMsg(s)) }

// Run returns nil both when ctx ends and when the user quits with q or
// Ctrl+C.
func (t *TUI) Run(ctx context.Context) error {
	p := tea.NewProgram(newModel(t.info), tea.WithAltScreen(), tea.WithContext(ctx))
	t.mu.Lock()
	t.program = p
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.program = nil
		t.mu.Unlock()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type model struct {
	info          Info
	visible       bool
	phase         dictation.Phase
	startedAt     time.Time
	now           time.Time
	frame         int
	level         float64
	peak          float64
	lastText      string
	results       uint64
	width, height int
}

func newModel(info Info) model {
	return model{info: info, phase: dictation.PhaseIdle}
}

func tick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		m.now = time.Time(msg)
		return m, tick()

	case visibleMsg:
		m.visible = bool(msg)

	case stateMsg:
		s := State(msg)
		if s.Phase == dictation.PhaseRecording && !m.phase.Active() {
			m.startedAt = time.Now()
			m.now = m.startedAt
			m.peak = 0
		}
		m.phase = s.Phase
		if m.phase.Active() {
			l := s.Level()
			m.level = m.level*0.6 + l*0.4
			m.peak = max(m.peak, l)
		} else {
			m.level = 0
		}
		if s.Results != m.results {
			m.results = s.Results
			m.lastText = s.LastText
		}
	}
	return m, nil
}

func (m model) status() string {
	switch m.phase {
	case dictation.PhaseRecording, dictation.PhaseLocked:
		label := "REC"
		if m.phase == dictation.PhaseLocked {
			label = "LOCKED"
		}
		secs := m.now.Sub(m.startedAt).Seconds()
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).
			Render(fmt.Sprintf("● %s %.1fs", label, max(0, secs)))
	case dictation.PhaseProcessing:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("◌ TRANSCRIBING")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○ STANDBY")
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	const panelWidth = eyeWidth + 1

	active := m.visible && m.phase.Active()
	level := 0.0
	if active {
		level = m.level
	}
	eye := renderEye(m.frame, level, active)

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	info := []string{m.status()}
	if active && m.now.Sub(m.startedAt) > time.Second && m.peak < 0.02 {
		info = append(info, lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("  ⚠ no voice detected"))
	}
	for _, line := range []string{m.info.Provider, m.info.Device} {
		if line != "" {
			info = append(info, dim.Render(line))
		}
	}
	info = append(info, "")
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	if m.info.Hotkey != "" {
		info = append(info, help.Bold(true).Render(m.info.Hotkey)+help.Render(" hold to talk, double tap to lock"))
	}
	info = append(info, help.Render("q to quit  murmur "+m.info.Version))

	left := strings.Split(eye+strings.Join(info, "\n"), "\n")
	for len(left) < m.height {
		left = append(left, "")
	}
	eyePanel := lipgloss.NewStyle().Width(panelWidth).Height(m.height).Render(strings.Join(left[:m.height], "\n"))

	textWidth := max(20, m.width-panelWidth-1)
	var right strings.Builder
	if m.lastText == "" {
		right.WriteString(dim.Render("No dictations yet"))
	} else {
		right.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).
			Render(fmt.Sprintf("Last dictation (#%d)", m.results)) + "\n\n")
		textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
		for _, line := range wrapText(m.lastText, max(10, textWidth-2)) {
			right.WriteString(textStyle.Render(line) + "\n")
		}
	}
	textPanel := lipgloss.NewStyle().Width(textWidth).Height(m.height).PaddingLeft(1).Render(right.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, textPanel)
}

// renderEye draws the eye with half blocks, two pixels per character.
func renderEye(frame int, level float64, active bool) string {
	pixels := eyePixels(frame, level, active)
	styles, bg := &stylesIdle, &bgIdle
	if active {
		styles, bg = &stylesActive, &bgActive
	}

	var b strings.Builder
	for cy := 0; cy < eyeHeight; cy++ {
		for cx := 0; cx < eyeWidth; cx++ {
			top, bot := pixels[cy*2][cx], pixels[cy*2+1][cx]
			switch {
			case top == 0 && bot == 0:
				b.WriteString(" ")
			case top == bot:
				b.WriteString(styles[top].Render("█"))
			case bot == 0:
				b.WriteString(styles[top].Render("▀"))
			case top == 0:
				b.WriteString(styles[bot].Render("▄"))
			default:
				b.WriteString(bg[top][bot].Render("▀"))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(1, width)

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if text != "" {
		lines = append(lines, text)
	}
	return lines
}
