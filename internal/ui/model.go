package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"joyhost/internal/ble"
	"joyhost/internal/ble/protocol"
	"joyhost/internal/state"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// buzzerTones maps buzzer codes to display names. Code 0 is silence.
var buzzerTones = [9]string{"off", "C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5"}

// Deps are the dashboard's dependencies, wired up in main.
type Deps struct {
	Session    *ble.Session
	Dispatcher *ble.Dispatcher
	Mirror     *state.Mirror
	// Results receives dispatcher outcomes; main owns the channel and
	// feeds it from DispatcherOptions.OnResult.
	Results <-chan ble.CommandResult
}

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps

	spinner     spinner.Model
	connectErr  error
	lastCommand string

	updates     <-chan state.Update
	cancelWatch func()

	buzzerTone int

	width  int
	height int
}

// New creates the dashboard model and registers its mirror watch.
func New(deps Deps) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	updates, cancel := deps.Mirror.WatchAll(64)
	return &Model{
		deps:        deps,
		spinner:     sp,
		updates:     updates,
		cancelWatch: cancel,
	}
}

// Init kicks off the connect attempt and the channel pumps.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		connectCmd(m.deps.Session),
		waitUpdate(m.updates),
		waitResult(m.deps.Results),
		tick(),
	)
}

// tick repaints on a timer so connection loss and supervisor reconnects
// show up even when no mirror updates arrive.
func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// connectCmd runs the blocking connect off the UI loop.
func connectCmd(s *ble.Session) tea.Cmd {
	return func() tea.Msg {
		return connectDoneMsg{Err: s.Connect(context.Background())}
	}
}

// waitUpdate blocks for the next accepted mirror change.
func waitUpdate(ch <-chan state.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return mirrorClosedMsg{}
		}
		return mirrorUpdateMsg{Update: u}
	}
}

// waitResult blocks for the next dispatcher outcome.
func waitResult(ch <-chan ble.CommandResult) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return commandResultMsg{Result: r}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectDoneMsg:
		m.connectErr = msg.Err
		return m, nil

	case tickMsg:
		return m, tick()

	case mirrorUpdateMsg:
		// Values render straight from the mirror; the message only
		// triggers a repaint and re-arms the pump.
		return m, waitUpdate(m.updates)

	case mirrorClosedMsg:
		return m, nil

	case commandResultMsg:
		m.lastCommand = formatResult(msg.Result)
		return m, waitResult(m.deps.Results)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.cancelWatch()
		m.deps.Session.Disconnect()
		return m, tea.Quit

	case "0", "1", "2", "3", "4", "5":
		level := uint16(key[0] - '0')
		m.submit(protocol.Vibration, protocol.Uint16(level))
		return m, nil

	case "t":
		m.buzzerTone++
		if m.buzzerTone > 8 {
			m.buzzerTone = 1
		}
		m.submit(protocol.Buzzer, protocol.Uint16(uint16(m.buzzerTone)))
		return m, nil

	case "s":
		m.buzzerTone = 0
		m.submit(protocol.Buzzer, protocol.Uint16(0))
		return m, nil

	case "l":
		led, _ := m.deps.Mirror.Get(protocol.LedEnabled)
		m.submit(protocol.LedEnabled, protocol.Pressed(!led.Bool()))
		return m, nil

	case "+", "=":
		m.adjustRate(20)
		return m, nil

	case "-", "_":
		m.adjustRate(-20)
		return m, nil
	}
	return m, nil
}

func (m *Model) adjustRate(delta int) {
	cur, ok := m.deps.Mirror.Get(protocol.UpdateRateMs)
	if !ok {
		return
	}
	next := int(cur.Uint) + delta
	info := protocol.Lookup(protocol.UpdateRateMs)
	if next < int(info.Min) {
		next = int(info.Min)
	}
	if next > int(info.Max) {
		next = int(info.Max)
	}
	m.submit(protocol.UpdateRateMs, protocol.Uint16(uint16(next)))
}

func (m *Model) submit(sig protocol.Signal, val protocol.Value) {
	if _, err := m.deps.Dispatcher.Submit(sig, val); err != nil {
		m.lastCommand = styleBad.Render(fmt.Sprintf("%s: %v", sig, err))
	}
}

func formatResult(r ble.CommandResult) string {
	switch {
	case r.Err == nil:
		return styleGood.Render(fmt.Sprintf("%s = %s ok", r.Signal, r.Value))
	case errors.Is(r.Err, ble.ErrSuperseded):
		return styleMuted.Render(fmt.Sprintf("%s = %s superseded", r.Signal, r.Value))
	case errors.Is(r.Err, ble.ErrDeviceRejected) && r.Corrected != nil:
		return styleWarn.Render(fmt.Sprintf("%s = %s rejected, device kept %s", r.Signal, r.Value, *r.Corrected))
	default:
		return styleBad.Render(fmt.Sprintf("%s = %s failed: %v", r.Signal, r.Value, r.Err))
	}
}

func (m *Model) View() string {
	// The session owns connection truth: a link drop or a supervisor
	// reconnect in progress switches the dashboard back to the connect
	// view without any message plumbing.
	if m.deps.Session.State() != ble.StateActive {
		return m.connectView()
	}

	snap := m.deps.Mirror.Snapshot()

	var b strings.Builder
	b.WriteString(styleTitle.Render("joyhost") + "  " + styleMuted.Render(m.deps.Session.State().String()) + "\n\n")
	b.WriteString(stylePanel.Render(m.axesView(snap)) + "\n")
	b.WriteString(m.buttonsView(snap) + "\n")
	b.WriteString(stylePanel.Render(m.statusView(snap)) + "\n")
	if m.lastCommand != "" {
		b.WriteString("  " + m.lastCommand + "\n")
	}
	b.WriteString(styleMuted.Render("  0-5 vibration · t tone · s silence · l led · +/- rate · q quit"))
	return b.String()
}

func (m *Model) connectView() string {
	if m.connectErr == nil {
		return fmt.Sprintf("\n  %s scanning for %s...\n", m.spinner.View(), protocol.AdvertisedName)
	}
	var b strings.Builder
	b.WriteString("\n  " + styleBad.Render("connection failed") + "\n")
	b.WriteString(styleMuted.Render(fmt.Sprintf("  %v\n", m.connectErr)))
	if errors.Is(m.connectErr, ble.ErrDeviceNotFound) {
		b.WriteString(styleMuted.Render("\n  Check that the joystick is powered on, the firmware is\n" +
			"  flashed, and this machine's Bluetooth is enabled.\n"))
	}
	b.WriteString(styleMuted.Render("\n  q quit\n"))
	return b.String()
}

const axisTrackWidth = 21

func (m *Model) axesView(snap map[protocol.Signal]protocol.Value) string {
	var b strings.Builder
	for i, sig := range []protocol.Signal{protocol.AxisX, protocol.AxisY} {
		raw, known := snap[sig]
		if i > 0 {
			b.WriteString("\n")
		}
		if !known {
			b.WriteString(fmt.Sprintf("%s  %s", sig, styleMuted.Render("awaiting data")))
			continue
		}
		b.WriteString(fmt.Sprintf("%s  %s  %4d  %+.3f", sig, axisTrack(raw.Uint), raw.Uint, Normalize(raw.Uint)))
	}
	return b.String()
}

func axisTrack(raw uint16) string {
	cells := make([]rune, axisTrackWidth)
	for i := range cells {
		cells[i] = '-'
	}
	cells[axisTrackWidth/2] = '|'
	cells[axisMarker(raw, axisTrackWidth)] = 'o'
	return "[" + string(cells) + "]"
}

var buttonLabels = []struct {
	sig   protocol.Signal
	label string
}{
	{protocol.ButtonB, "B"},
	{protocol.Button1, "1"},
	{protocol.Button2, "2"},
	{protocol.Button3, "3"},
	{protocol.Button4, "4"},
}

func (m *Model) buttonsView(snap map[protocol.Signal]protocol.Value) string {
	cells := make([]string, 0, len(buttonLabels))
	for _, bl := range buttonLabels {
		val := snap[bl.sig]
		if val.Bool() {
			cells = append(cells, styleButtonDown.Render(bl.label))
		} else {
			cells = append(cells, styleButtonUp.Render(bl.label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func (m *Model) statusView(snap map[protocol.Signal]protocol.Value) string {
	battery := styleMuted.Render("?")
	if v, ok := snap[protocol.BatteryLevel]; ok {
		text := fmt.Sprintf("%d%%", v.Uint)
		switch {
		case v.Uint <= 15:
			battery = styleBad.Render(text)
		case v.Uint <= 40:
			battery = styleWarn.Render(text)
		default:
			battery = styleGood.Render(text)
		}
	}

	rate := "?"
	if v, ok := snap[protocol.UpdateRateMs]; ok {
		rate = fmt.Sprintf("%dms", v.Uint)
	}
	led := "?"
	if v, ok := snap[protocol.LedEnabled]; ok {
		if v.Bool() {
			led = "on"
		} else {
			led = "off"
		}
	}
	name := ""
	if v, ok := snap[protocol.DeviceName]; ok {
		name = v.Text
	}

	return fmt.Sprintf("battery %s   rate %s   led %s   buzzer %s   %s",
		battery, rate, led, buzzerTones[m.buzzerTone], styleMuted.Render(name))
}
