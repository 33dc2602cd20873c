// Package ui is the participant's terminal call screen.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mossy-p/telecare-signaling/internal/session"
)

const chatHistory = 12

// Call is the part of a session.Session the call screen drives
type Call interface {
	JoinRoom(ctx context.Context, roomID, displayName string) error
	ToggleVideo(ctx context.Context) error
	ToggleAudio(ctx context.Context) error
	ToggleScreenShare(ctx context.Context) error
	SendChatMessage(text string) error
	EndCall(ctx context.Context) error

	Updates() <-chan session.Update
	State() session.State
	RoomID() string
	DisplayName() string
	Media() session.MediaState
	Links() []session.LinkInfo
	Tiles() []session.Tile
	Messages() []session.ChatMessage
	Unread() int
	MarkRead()
}

// DisconnectedMsg tells the call screen the signaling connection is gone
type DisconnectedMsg struct {
	Err error
}

// updateMsg carries a session update into the event loop
type updateMsg session.Update

// resultMsg reports the outcome of an action run off the event loop
type resultMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the call screen
type Model struct {
	ctx    context.Context
	call   Call
	roomID string
	name   string

	input     textinput.Model
	chatOpen  bool
	showPeers bool
	busy      string

	notice    string
	noticeErr bool
	width     int

	err error
}

// New builds the call screen for roomID. With an empty name the participant
// is asked for one before joining.
func New(ctx context.Context, call Call, roomID, name string) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60
	if name == "" {
		ti.Placeholder = "Your name"
	} else {
		ti.Placeholder = "Type a message or /help"
	}

	return Model{
		ctx:    ctx,
		call:   call,
		roomID: roomID,
		name:   strings.TrimSpace(name),
		input:  ti,
	}
}

// Err is the error the screen exited with, if any
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForUpdate(m.call.Updates())}
	if m.name != "" {
		cmds = append(cmds, m.join(m.name))
	}
	return tea.Batch(cmds...)
}

func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func run(action string, f func() error) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{action: action, err: f()}
	}
}

func (m Model) join(name string) tea.Cmd {
	return run("join", func() error { return m.call.JoinRoom(m.ctx, m.roomID, name) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case updateMsg:
		if msg.Notice != "" {
			m.setNotice(msg.Notice, false)
		}
		if m.chatOpen {
			m.call.MarkRead()
		}
		return m, waitForUpdate(m.call.Updates())

	case resultMsg:
		m.busy = ""
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("%s: %v", msg.action, msg.err), true)
		}
		switch msg.action {
		case "join":
			if msg.err == nil {
				m.input.Placeholder = "Type a message or /help"
			}
		case "end":
			m.err = msg.err
			return m, tea.Quit
		}
		return m, nil

	case DisconnectedMsg:
		m.err = msg.Err
		if msg.Err != nil {
			m.setNotice(msg.Err.Error(), true)
		}
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.chatOpen = !m.chatOpen
		if m.chatOpen {
			m.call.MarkRead()
		}
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		if text == "" {
			return m, nil
		}
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if m.call.State() == session.StateAwaitingName {
		m.name = text
		m.busy = "joining"
		return m, m.join(text)
	}

	if !strings.HasPrefix(text, "/") {
		return m, run("chat", func() error { return m.call.SendChatMessage(text) })
	}

	ctx := m.ctx
	switch strings.Fields(text)[0] {
	case "/video":
		m.busy = "switching camera"
		return m, run("video", func() error { return m.call.ToggleVideo(ctx) })
	case "/audio":
		m.busy = "switching microphone"
		return m, run("audio", func() error { return m.call.ToggleAudio(ctx) })
	case "/screen":
		m.busy = "switching screen share"
		return m, run("screen", func() error { return m.call.ToggleScreenShare(ctx) })
	case "/peers":
		m.showPeers = !m.showPeers
	case "/chat":
		m.chatOpen = !m.chatOpen
		if m.chatOpen {
			m.call.MarkRead()
		}
	case "/end":
		m.busy = "ending call"
		return m, run("end", func() error { return m.call.EndCall(ctx) })
	case "/help":
		m.setNotice("/video /audio /screen /peers /chat /end, tab opens chat", false)
	default:
		m.setNotice("unknown command "+text, true)
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	header := TitleStyle.Render("Consultation " + m.roomID)
	if n := m.call.Unread(); n > 0 && !m.chatOpen {
		header += " " + BadgeStyle.Render(fmt.Sprintf("%d new", n))
	}
	b.WriteString(header + "\n\n")

	if m.call.State() == session.StateAwaitingName && m.busy == "" {
		b.WriteString("Enter your name to join the call\n\n")
		if m.notice != "" {
			b.WriteString(ErrorStyle.Render(m.notice) + "\n")
		}
		b.WriteString(m.input.View() + "\n")
		return b.String()
	}

	b.WriteString(m.renderTiles() + "\n")
	b.WriteString(m.renderMedia() + "\n")

	if m.showPeers {
		b.WriteString("\n" + PeerTable(m.call.Links(), m.call.Tiles()) + "\n")
	}
	if m.chatOpen {
		b.WriteString("\n" + m.renderChat() + "\n")
	}

	b.WriteString("\n")
	if m.busy != "" {
		b.WriteString(MutedStyle.Render(m.busy+"...") + "\n")
	}
	if m.notice != "" {
		if m.noticeErr {
			b.WriteString(ErrorStyle.Render(m.notice) + "\n")
		} else {
			b.WriteString(NoticeStyle.Render(m.notice) + "\n")
		}
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(MutedStyle.Render("tab chat • /help commands • ctrl+c quit") + "\n")
	return b.String()
}

func (m Model) renderTiles() string {
	md := m.call.Media()
	self := fmt.Sprintf("%s (you)\n%s", m.call.DisplayName(), MutedStyle.Render(string(md.StreamKind)))
	tiles := []string{SelfTileStyle.Render(self)}

	for _, t := range m.call.Tiles() {
		kinds := strings.Join(t.Kinds, " + ")
		if kinds == "" {
			kinds = "connecting"
		}
		tiles = append(tiles, TileStyle.Render(fmt.Sprintf("%s\n%s", shortID(t.RemoteID), MutedStyle.Render(kinds))))
	}
	if len(m.call.Tiles()) == 0 {
		tiles = append(tiles, TileStyle.Render(MutedStyle.Render("waiting for others\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tiles...)
}

func (m Model) renderMedia() string {
	md := m.call.Media()
	video := toggleLabel("video", md.VideoEnabled)
	if !md.CameraAvailable {
		video = MutedStyle.Render("✕ no camera")
	}
	audio := toggleLabel("audio", md.AudioEnabled)
	if !md.MicrophoneAvailable {
		audio = MutedStyle.Render("✕ no microphone")
	}
	return strings.Join([]string{video, audio, toggleLabel("screen", md.ScreenSharing)}, "   ")
}

func (m Model) renderChat() string {
	msgs := m.call.Messages()
	if len(msgs) > chatHistory {
		msgs = msgs[len(msgs)-chatHistory:]
	}
	if len(msgs) == 0 {
		return ChatBoxStyle.Render(MutedStyle.Render("No messages yet"))
	}

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		sender := SenderStyle.Render(msg.SenderDisplayName)
		if msg.Self {
			sender = SelfStyle.Render("you")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", MutedStyle.Render(msg.ReceivedAt.Format("15:04")), sender, msg.Text))
	}
	return ChatBoxStyle.Render(strings.Join(lines, "\n"))
}
