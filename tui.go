package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ecochat/chat"
	"ecochat/clipboard"
	"ecochat/gesture"
	"ecochat/log"
)

type tickMsg time.Time

type tuiScreen int

const (
	screenHome tuiScreen = iota
	screenChat
)

// Layout rows. The chat screen has a three row header (title, category
// tabs, rule) and a three row footer (status, help, input + mic).
const (
	headerRows   = 3
	footerRows   = 3
	tabsRow      = 1
	homeListTop  = 3
	meterWidth   = 16
	micLabel     = "[ hold to talk ]"
	tabSeparator = " "
)

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tabActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Background(lipgloss.Color("42")).Bold(true)
	userBubble     = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("25"))
	botBubble      = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236"))
	stampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	recStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	alertStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("124")).Bold(true)
	micIdleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("238"))
	micRecStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Bold(true)
	meterStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	spinnerFrames  = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

type tuiOptions struct {
	DeviceLine string
	HotkeyLine string
}

type tuiModel struct {
	ctx  context.Context
	chat *chat.Session
	mic  *gesture.Controller

	screen        tuiScreen
	cursor        int
	snap          chat.Snapshot
	frame         int
	width, height int

	capturing    bool
	captureStart time.Time
	transcribing bool
	audioLevel   float64
	peakLevel    float64
	micHeld      bool // left button went down on the mic

	deviceLine string
	hotkeyLine string
	alert      *alertMsg
	notice     string
}

func newTUIModel(ctx context.Context, sess *chat.Session, mic *gesture.Controller, opts tuiOptions) tuiModel {
	return tuiModel{
		ctx:        ctx,
		chat:       sess,
		mic:        mic,
		snap:       sess.Snapshot(),
		deviceLine: opts.DeviceLine,
		hotkeyLine: opts.HotkeyLine,
	}
}

func newTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		cmd = tuiTick()

	case tea.KeyMsg:
		m, cmd = m.handleKey(msg)

	case tea.MouseMsg:
		m, cmd = m.handleMouse(msg)

	case captureStartedMsg:
		m.capturing = true
		m.captureStart = time.Now()
		m.audioLevel = 0
		m.peakLevel = 0
		m.deviceLine = "mic: " + msg.Device

	case captureStoppedMsg:
		m.capturing = false
		m.audioLevel = 0

	case audioLevelMsg:
		if m.capturing {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			m.peakLevel = max(m.peakLevel, msg.Level)
		}

	case transcribingMsg:
		m.transcribing = msg.Active

	case alertMsg:
		m.alert = &msg

	case noticeMsg:
		m.notice = msg.Text
	}

	m.snap = m.chat.Snapshot()
	return m, cmd
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tuiModel, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.alert != nil {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc, tea.KeySpace:
			m.alert = nil
		}
		return m, nil
	}
	m.notice = ""
	if m.screen == screenHome {
		return m.handleHomeKey(msg)
	}
	return m.handleChatKey(msg)
}

func (m tuiModel) handleHomeKey(msg tea.KeyMsg) (tuiModel, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(chat.Categories)-1 {
			m.cursor++
		}
	case "enter":
		return m.selectCategory(chat.Categories[m.cursor])
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) handleChatKey(msg tea.KeyMsg) (tuiModel, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.screen = screenHome
		ctx, sess := m.ctx, m.chat
		return m, func() tea.Msg {
			sess.Back(ctx)
			return nil
		}
	case tea.KeyEnter:
		ctx, sess := m.ctx, m.chat
		return m, func() tea.Msg {
			sess.Submit(ctx)
			return nil
		}
	case tea.KeyTab:
		next := chat.Categories[(m.cursor+1)%len(chat.Categories)]
		return m.selectCategory(next)
	case tea.KeyBackspace:
		runes := []rune(m.chat.Input())
		if len(runes) > 0 {
			m.chat.SetInput(string(runes[:len(runes)-1]))
		}
	case tea.KeyCtrlU:
		m.chat.SetInput("")
	case tea.KeyCtrlY:
		m.notice = m.copyLastReply()
	case tea.KeySpace:
		m.chat.SetInput(m.chat.Input() + " ")
	case tea.KeyRunes:
		m.chat.SetInput(m.chat.Input() + string(msg.Runes))
	}
	return m, nil
}

func (m tuiModel) handleMouse(msg tea.MouseMsg) (tuiModel, tea.Cmd) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		if m.alert != nil {
			m.alert = nil
			return m, nil
		}
		if m.screen == screenChat && m.onMic(msg.X, msg.Y) {
			m.micHeld = true
			m.mic.Press(float64(msg.X))
			return m, nil
		}
		if cat, ok := m.categoryAt(msg.X, msg.Y); ok {
			return m.selectCategory(cat)
		}

	case tea.MouseActionMotion:
		if m.micHeld {
			m.mic.Move(float64(msg.X))
		}

	case tea.MouseActionRelease:
		if m.micHeld {
			m.micHeld = false
			m.mic.Release()
		}
	}
	return m, nil
}

func (m tuiModel) selectCategory(cat chat.Category) (tuiModel, tea.Cmd) {
	m.screen = screenChat
	for i, c := range chat.Categories {
		if c == cat {
			m.cursor = i
		}
	}
	ctx, sess := m.ctx, m.chat
	return m, func() tea.Msg {
		if err := sess.SelectCategory(ctx, cat); errors.Is(err, chat.ErrSelectionInFlight) {
			return noticeMsg{Text: "category change already in progress"}
		}
		return nil
	}
}

func (m tuiModel) copyLastReply() string {
	for i := len(m.snap.Messages) - 1; i >= 0; i-- {
		msg := m.snap.Messages[i]
		if msg.Sender != chat.SenderBot {
			continue
		}
		if err := clipboard.Copy(msg.Text); err != nil {
			log.Warnf("clipboard copy: %v", err)
			return "clipboard unavailable"
		}
		return "reply copied"
	}
	return "nothing to copy"
}

func (m tuiModel) onMic(x, y int) bool {
	return y == m.height-1 && x >= m.width-lipgloss.Width(micLabel) && x < m.width
}

type tabSpan struct {
	cat        chat.Category
	start, end int
}

// tabSpans lays out the category tabs on the tabs row, left to right.
func tabSpans() []tabSpan {
	spans := make([]tabSpan, 0, len(chat.Categories))
	x := 1
	for _, c := range chat.Categories {
		w := len(c.Label()) + 2
		spans = append(spans, tabSpan{cat: c, start: x, end: x + w})
		x += w + len(tabSeparator)
	}
	return spans
}

func (m tuiModel) categoryAt(x, y int) (chat.Category, bool) {
	switch m.screen {
	case screenHome:
		i := y - homeListTop
		if i >= 0 && i < len(chat.Categories) {
			return chat.Categories[i], true
		}
	case screenChat:
		if y != tabsRow {
			return "", false
		}
		for _, s := range tabSpans() {
			if x >= s.start && x < s.end {
				return s.cat, true
			}
		}
	}
	return "", false
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.screen == screenHome {
		return m.viewHome()
	}
	return m.viewChat()
}

func (m tuiModel) header() string {
	left := titleStyle.Render("ecochat")
	if m.snap.Category != "" {
		left += dimStyle.Render(" · " + m.snap.Category.Label())
	}
	right := dimStyle.Render(version)
	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func (m tuiModel) viewHome() string {
	lines := []string{m.header(), "", dimStyle.Render("Choose a data set to ask about:")}
	for i, c := range chat.Categories {
		label := "  " + c.Label()
		if i == m.cursor {
			lines = append(lines, tabActiveStyle.Render("> "+c.Label()))
			continue
		}
		lines = append(lines, tabStyle.Render(label))
	}
	lines = append(lines, "", m.statusLine(), "")
	lines = append(lines, helpKeyStyle.Render("↑/↓ enter")+helpStyle.Render(" select  ")+
		helpKeyStyle.Render("ctrl+c")+helpStyle.Render(" quit"))
	return strings.Join(lines, "\n")
}

func (m tuiModel) viewChat() string {
	var b strings.Builder
	b.WriteString(m.header() + "\n")

	var tabs []string
	for _, s := range tabSpans() {
		style := tabStyle
		if s.cat == m.snap.Category {
			style = tabActiveStyle
		}
		tabs = append(tabs, style.Render(" "+s.cat.Label()+" "))
	}
	b.WriteString(" " + strings.Join(tabs, tabSeparator) + "\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", m.width)) + "\n")

	body := max(1, m.height-headerRows-footerRows)
	for _, line := range m.messageLines(m.width, body) {
		b.WriteString(line + "\n")
	}

	b.WriteString(m.statusLine() + "\n")
	b.WriteString(helpKeyStyle.Render("enter") + helpStyle.Render(" send  ") +
		helpKeyStyle.Render("hold mic") + helpStyle.Render(" talk, drag left to cancel  ") +
		helpKeyStyle.Render("tab") + helpStyle.Render(" category  ") +
		helpKeyStyle.Render("ctrl+y") + helpStyle.Render(" copy  ") +
		helpKeyStyle.Render("esc") + helpStyle.Render(" back") + "\n")
	b.WriteString(m.inputLine())
	return b.String()
}

// messageLines renders the transcript bottom-anchored in height rows.
func (m tuiModel) messageLines(width, height int) []string {
	bubbleWidth := max(12, width*3/4)
	var lines []string
	for _, msg := range m.snap.Messages {
		lines = append(lines, renderBubble(msg, bubbleWidth, width)...)
	}
	if m.snap.Selecting {
		lines = append(lines, dimStyle.Render(" switching data set"+dots(m.frame)))
	}
	if m.snap.Typing {
		lines = append(lines, dimStyle.Render(" assistant is typing"+dots(m.frame)))
	}
	if len(lines) > height {
		return lines[len(lines)-height:]
	}
	pad := make([]string, height-len(lines), height)
	return append(pad, lines...)
}

func renderBubble(msg chat.Message, bubbleWidth, width int) []string {
	style, user := botBubble, msg.Sender == chat.SenderUser
	if user {
		style = userBubble
	}
	var out []string
	for _, line := range wrapText(msg.Text, bubbleWidth-2) {
		cell := style.Render(" " + line + " ")
		if user {
			cell = strings.Repeat(" ", max(0, width-lipgloss.Width(cell)-1)) + cell
		} else {
			cell = " " + cell
		}
		out = append(out, cell)
	}
	stamp := stampStyle.Render(msg.At.Local().Format("15:04"))
	if user {
		stamp = strings.Repeat(" ", max(0, width-lipgloss.Width(stamp)-1)) + stamp
	} else {
		stamp = " " + stamp
	}
	return append(out, stamp)
}

func (m tuiModel) statusLine() string {
	switch {
	case m.alert != nil:
		return alertStyle.Render(fmt.Sprintf(" %s: %s ", m.alert.Title, m.alert.Message)) +
			helpStyle.Render(" enter to dismiss")
	case m.mic.State() == gesture.StateCapturing && m.mic.Cancelled():
		return warnStyle.Render("✕ cancelled, release to finish")
	case m.capturing:
		status := recStyle.Render(fmt.Sprintf("● REC %.1fs ", time.Since(m.captureStart).Seconds())) +
			renderMeter(m.audioLevel)
		if time.Since(m.captureStart) > time.Second && m.peakLevel < 0.02 {
			status += warnStyle.Render("  ⚠ no voice detected")
		}
		return status
	case m.transcribing:
		return dimStyle.Render(spinnerFrames[m.frame%len(spinnerFrames)] + " transcribing")
	case m.notice != "":
		return warnStyle.Render(m.notice)
	}
	return dimStyle.Render("○ " + m.deviceLine + "  " + m.hotkeyLine)
}

func renderMeter(level float64) string {
	filled := int(math.Min(1, level*8) * meterWidth)
	return meterStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", meterWidth-filled))
}

func (m tuiModel) inputLine() string {
	mic := micIdleStyle.Render(micLabel)
	if m.mic.State() == gesture.StateCapturing {
		mic = micRecStyle.Render(micLabel)
	}
	room := max(4, m.width-lipgloss.Width(micLabel)-3)
	text := []rune(m.snap.Input)
	if len(text) > room-1 {
		text = text[len(text)-(room-1):]
	}
	cursor := " "
	if m.frame/8%2 == 0 {
		cursor = "█"
	}
	field := "> " + string(text) + cursor
	gap := max(1, m.width-lipgloss.Width(field)-lipgloss.Width(micLabel))
	return field + strings.Repeat(" ", gap) + mic
}

func dots(frame int) string {
	return strings.Repeat(".", frame/6%3+1)
}

// wrapText breaks text into lines of at most width runes, preferring spaces.
// Embedded newlines are kept.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}
