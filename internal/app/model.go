// Package app implements the main Bubble Tea application: a template list,
// the invocation history of the selected template, and a response detail pane.
package app

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cozyreq/cozyreq/internal/models"
	"github.com/cozyreq/cozyreq/internal/session"
	"github.com/cozyreq/cozyreq/internal/ui/components"
)

// Pane identifies the focused area of the screen.
type Pane int

const (
	// PaneTemplates is the template catalog list.
	PaneTemplates Pane = iota
	// PaneHistory is the invocation history of the selected template.
	PaneHistory
)

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	SwitchFocus key.Binding
	Execute     key.Binding
	Cancel      key.Binding
	View        key.Binding
	Refresh     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		SwitchFocus: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Execute:     key.NewBinding(key.WithKeys("enter", "x"), key.WithHelp("enter", "execute")),
		Cancel:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		View:        key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "view response")),
		Refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Execute, k.View, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.SwitchFocus},
		{k.Execute, k.Cancel, k.View},
		{k.Refresh, k.Help, k.Quit},
	}
}

// Model is the main application model.
type Model struct {
	commands *Commands
	keymap   KeyMap

	focus            Pane
	templates        []models.RequestTemplate
	selectedTemplate int
	history          []models.Invocation
	selectedHistory  int
	stats            *models.TemplateStats
	record           *models.ResponseRecord

	activity components.ActivitySpinner
	width    int
	height   int

	showHelp     bool
	ready        bool
	loading      bool
	notification string
	notifyError  bool

	eventChannel chan session.EngineEvent
}

// NewModel initializes a new application model.
func NewModel(engine *session.Engine) *Model {
	return &Model{
		commands: NewCommands(engine),
		keymap:   DefaultKeyMap(),
		activity: components.NewActivitySpinner(),
		loading:  true,
	}
}

// Init subscribes to engine events and loads the catalog.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.activity.Tick(),
		m.commands.Subscribe(),
		m.commands.LoadTemplates(),
		m.commands.Tick(DefaultTickInterval),
	)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.activity, cmd = m.activity.Update(msg)
		return m, cmd

	case TickMsg:
		cmds := []tea.Cmd{m.commands.Tick(DefaultTickInterval)}
		if id := m.selectedTemplateID(); id != "" {
			cmds = append(cmds, m.commands.LoadHistory(id))
		}
		return m, tea.Batch(cmds...)

	case SubscriptionMsg:
		m.eventChannel = msg.Channel
		return m, WaitForEngineEvent(m.eventChannel)

	case EngineEventMsg:
		return m.handleEngineEvent(msg)

	case TemplatesLoadedMsg:
		return m.handleTemplatesLoaded(msg)

	case HistoryLoadedMsg:
		return m.handleHistoryLoaded(msg)

	case ExecuteResultMsg:
		if msg.Error != nil {
			return m.notify("execute failed: "+msg.Error.Error(), true)
		}
		return m.notify("request admitted", false)

	case CancelResultMsg:
		if msg.Error != nil {
			return m.notify("cancel failed: "+msg.Error.Error(), true)
		}
		return m.notify("cancellation requested", false)

	case ResponseLoadedMsg:
		if msg.Error != nil {
			return m.notify("no response recorded: "+msg.Error.Error(), true)
		}
		m.record = msg.Record
		return m, nil

	case NotificationMsg:
		return m.notify(msg.Message, msg.IsError)

	case ClearNotificationMsg:
		m.notification = ""
		return m, nil

	case ErrorMsg:
		return m.notify(msg.Context+": "+msg.Error.Error(), true)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keymap.SwitchFocus):
		if m.focus == PaneTemplates {
			m.focus = PaneHistory
		} else {
			m.focus = PaneTemplates
		}
		return m, nil

	case key.Matches(msg, m.keymap.Up):
		m.moveSelection(-1)
		return m.selectionChanged()

	case key.Matches(msg, m.keymap.Down):
		m.moveSelection(1)
		return m.selectionChanged()

	case key.Matches(msg, m.keymap.Refresh):
		cmds := []tea.Cmd{m.commands.LoadTemplates()}
		if id := m.selectedTemplateID(); id != "" {
			cmds = append(cmds, m.commands.LoadHistory(id))
		}
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keymap.Execute):
		if id := m.selectedTemplateID(); id != "" {
			return m, m.commands.Execute(id, nil)
		}
		return m, nil

	case key.Matches(msg, m.keymap.Cancel):
		if inv := m.selectedInvocation(); inv != nil && !inv.Status.Terminal() {
			return m, m.commands.Cancel(inv.ID)
		}
		return m, nil

	case key.Matches(msg, m.keymap.View):
		if inv := m.selectedInvocation(); inv != nil {
			return m, m.commands.LoadResponse(inv.ID)
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleEngineEvent(msg EngineEventMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{WaitForEngineEvent(m.eventChannel)}

	switch event := msg.Event.(type) {
	case session.InvocationEvent:
		if event.Invocation.TemplateID == m.selectedTemplateID() {
			cmds = append(cmds, m.commands.LoadHistory(event.Invocation.TemplateID))
		}

	case session.CredentialEvent:
		if event.ReauthRequired {
			m.notification = "sign-in required: complete the magic link to continue"
			m.notifyError = true
			cmds = append(cmds, m.commands.ClearNotification())
		}

	case session.ErrorEvent:
		m.notification = event.Component + ": " + event.Error.Error()
		m.notifyError = true
		cmds = append(cmds, m.commands.ClearNotification())
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleTemplatesLoaded(msg TemplatesLoadedMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.Error != nil {
		return m.notify("failed to load templates: "+msg.Error.Error(), true)
	}
	m.templates = msg.Templates
	if m.selectedTemplate >= len(m.templates) {
		m.selectedTemplate = 0
	}
	if id := m.selectedTemplateID(); id != "" {
		return m, m.commands.LoadHistory(id)
	}
	return m, nil
}

func (m *Model) handleHistoryLoaded(msg HistoryLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		return m.notify("failed to load history: "+msg.Error.Error(), true)
	}
	if msg.TemplateID != m.selectedTemplateID() {
		// Stale load for a previously selected template.
		return m, nil
	}
	m.history = msg.Invocations
	m.stats = msg.Stats
	if msg.Stats != nil {
		m.activity.SetActive(msg.Stats.Running + msg.Stats.Pending)
	}
	if m.selectedHistory >= len(m.history) {
		m.selectedHistory = 0
	}
	return m, nil
}

func (m *Model) moveSelection(delta int) {
	if m.focus == PaneTemplates {
		m.selectedTemplate = clamp(m.selectedTemplate+delta, len(m.templates))
	} else {
		m.selectedHistory = clamp(m.selectedHistory+delta, len(m.history))
	}
}

func (m *Model) selectionChanged() (tea.Model, tea.Cmd) {
	if m.focus == PaneTemplates {
		m.history = nil
		m.stats = nil
		m.record = nil
		m.selectedHistory = 0
		if id := m.selectedTemplateID(); id != "" {
			return m, m.commands.LoadHistory(id)
		}
	}
	return m, nil
}

func (m *Model) notify(message string, isError bool) (tea.Model, tea.Cmd) {
	m.notification = message
	m.notifyError = isError
	return m, m.commands.ClearNotification()
}

func (m *Model) selectedTemplateID() string {
	if m.selectedTemplate < len(m.templates) {
		return m.templates[m.selectedTemplate].ID
	}
	return ""
}

func (m *Model) selectedInvocation() *models.Invocation {
	if m.selectedHistory < len(m.history) {
		return &m.history[m.selectedHistory]
	}
	return nil
}

func clamp(v, length int) int {
	if length == 0 {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v >= length {
		return length - 1
	}
	return v
}
