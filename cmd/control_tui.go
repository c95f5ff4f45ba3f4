// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/gatepro/pkg/driver"
	"github.com/Thermoquad/gatepro/pkg/gatepro"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	refreshInterval = 250 * time.Millisecond
	positionStep    = 0.1
	maxLogEntries   = 100
)

// Focus states
const (
	focusControls = iota
	focusParamList
	focusParamInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// gateDriver is the part of the driver the TUI reads and commands
type gateDriver interface {
	State() driver.CoverState
	Params() driver.Params
	Bindings() []driver.ParamBinding
	DeviceInfo() string
	LearnStatus() string
	PendingTx() []string

	RequestOpen()
	RequestClose()
	RequestStop()
	RequestToggle()
	RequestPosition(p float64) error
	RequestSetParam(index, value int) bool
	RequestCommand(cmd gatepro.Command) error
}

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// paramItem is one bound parameter in the list
type paramItem struct {
	binding driver.ParamBinding
	value   int
	known   bool
}

// Implement list.Item interface
func (p paramItem) Title() string { return p.binding.Name }
func (p paramItem) Description() string {
	if !p.known {
		return fmt.Sprintf("#%d  --", p.binding.Index)
	}
	if p.binding.Kind == driver.ParamSwitch {
		state := "OFF"
		if p.value != 0 {
			state = "ON"
		}
		return fmt.Sprintf("#%d  %s", p.binding.Index, state)
	}
	return fmt.Sprintf("#%d  %d", p.binding.Index, p.value)
}
func (p paramItem) FilterValue() string { return p.binding.Name }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	drv      gateDriver
	connInfo string

	// Snapshot refreshed every tick
	state       driver.CoverState
	params      driver.Params
	devInfo     string
	learnStatus string
	pendingTx   int

	paramList  list.Model
	paramInput textinput.Model
	bar        progress.Model

	stats    *gatepro.Statistics
	eventLog []logEntry

	focusedField   int
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlRxMsg struct {
	msg gatepro.RawMessage
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(drv gateDriver, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "value"
	ti.CharLimit = 6
	ti.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	paramList := list.New([]list.Item{}, delegate, 30, 12)
	paramList.Title = "Parameters"
	paramList.SetShowStatusBar(false)
	paramList.SetShowHelp(false)
	paramList.SetFilteringEnabled(false)

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 20

	m := controlModel{
		drv:        drv,
		connInfo:   connInfo,
		paramList:  paramList,
		paramInput: ti,
		bar:        bar,
		stats:      gatepro.NewStatistics(),
		eventLog:   make([]logEntry, 0),
		width:      80,
		height:     24,
	}
	m.refresh()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, m.width-40)
		m.paramList.SetSize(30, max(6, m.height-20))

	case controlTickMsg:
		m.refresh()
		return m, controlTickCmd()

	case controlRxMsg:
		m.processMessage(msg.msg)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		if m.connectionLost {
			m.addLogEntry("Reconnected", false)
		} else {
			m.addLogEntry("Connected", false)
		}
		m.connectionLost = false
		m.connInfo = msg.connInfo
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.focusedField == focusParamInput {
		return m.handleInputKey(msg)
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.focusedField == focusControls {
			m.focusedField = focusParamList
		} else {
			m.focusedField = focusControls
		}
		return m, nil

	case "o":
		m.drv.RequestOpen()
		m.addLogEntry("Open requested", false)
	case "c":
		m.drv.RequestClose()
		m.addLogEntry("Close requested", false)
	case "s", " ":
		m.drv.RequestStop()
		m.addLogEntry("Stop requested", false)
	case "t":
		m.drv.RequestToggle()
		m.addLogEntry("Toggle requested", false)
	case "+", "=":
		m.stepPosition(positionStep)
	case "-":
		m.stepPosition(-positionStep)
	case "l":
		m.sendCommand(gatepro.CmdLearn)
	case "m":
		m.sendCommand(gatepro.CmdRemoteLearn)
	case "r":
		m.sendCommand(gatepro.CmdReadParams)
	case "i":
		m.sendCommand(gatepro.CmdDevInfo)

	case "enter":
		if m.focusedField == focusParamList && m.selectedParam() != nil {
			m.focusedField = focusParamInput
			m.paramInput.SetValue("")
			return m, m.paramInput.Focus()
		}

	default:
		if m.focusedField == focusParamList {
			var cmd tea.Cmd
			m.paramList, cmd = m.paramList.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m controlModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.paramInput.Blur()
		m.focusedField = focusParamList
		return m, nil

	case "enter":
		m.submitParam()
		m.paramInput.Blur()
		m.focusedField = focusParamList
		return m, nil
	}

	var cmd tea.Cmd
	m.paramInput, cmd = m.paramInput.Update(msg)
	return m, cmd
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("GATEPRO CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (params) | right panel (gate)
	leftWidth := 30
	rightWidth := max(20, m.width-leftWidth-6)

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField != focusControls {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	paramPanel := listStyle.Render(m.renderParamPanel(labelStyle))

	gateStyle := boxStyle.Width(rightWidth)
	if m.focusedField == focusControls {
		gateStyle = focusedBoxStyle.Width(rightWidth)
	}
	gatePanel := gateStyle.Render(m.renderGatePanel(labelStyle, valueStyle, headerStyle, warningStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, paramPanel, " ", gatePanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderGatePanel(labelStyle, valueStyle, headerStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder

	state := m.state
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("State:"), valueStyle.Render(strings.ToUpper(state.Label()))))

	if state.PositionKnown {
		s.WriteString(fmt.Sprintf("%s %s %s\n", labelStyle.Render("Position:"),
			m.bar.ViewAs(clampUnit(state.Position)),
			valueStyle.Render(fmt.Sprintf("%3d%%", state.Percent()))))
	} else {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Position:"), warningStyle.Render("unknown")))
	}

	if state.HasTarget {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Target:"),
			valueStyle.Render(fmt.Sprintf("%d%%", int(state.Target*100+0.5)))))
	}
	if state.Startup {
		s.WriteString(warningStyle.Render("Starting up..."))
		s.WriteString("\n")
	}

	if m.devInfo != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Device:"), m.devInfo))
	}
	if m.learnStatus != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Learn:"), m.learnStatus))
	}
	s.WriteString(fmt.Sprintf("%s %d\n\n", labelStyle.Render("TX queue:"), m.pendingTx))

	s.WriteString(headerStyle.Render("o=open c=close s=stop t=toggle +/-=step 10%"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("l=auto learn m=remote learn r=read params i=device info"))

	return s.String()
}

func (m controlModel) renderParamPanel(labelStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(m.paramList.View())

	if m.focusedField == focusParamInput {
		if p := m.selectedParam(); p != nil {
			s.WriteString("\n")
			s.WriteString(labelStyle.Render(p.binding.Name + ": "))
			s.WriteString(m.paramInput.View())
		}
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle lipgloss.Style, boxStyle lipgloss.Style) string {
	m.stats.CalculateRates()
	errors := m.stats.ParseErrors + m.stats.FramingErrors

	errText := valueStyle.Render("0")
	if errors > 0 {
		errText = errorStyle.Render(strconv.FormatUint(errors, 10))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Total:"), valueStyle.Render(strconv.FormatUint(m.stats.TotalMessages, 10)),
		labelStyle.Render("Unknown:"), valueStyle.Render(strconv.FormatUint(m.stats.UnknownMessage, 10)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f msg/s", m.stats.MessageRate)),
	)

	return boxStyle.Width(max(20, m.width-4)).Render(content)
}

func (m controlModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := min(8, len(m.eventLog))
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(max(20, m.width-4)).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

// refresh copies the driver snapshot into the model
func (m *controlModel) refresh() {
	m.state = m.drv.State()
	m.params = m.drv.Params()
	m.devInfo = m.drv.DeviceInfo()
	m.learnStatus = m.drv.LearnStatus()
	m.pendingTx = len(m.drv.PendingTx())

	bindings := m.drv.Bindings()
	items := make([]list.Item, len(bindings))
	for i, b := range bindings {
		v, ok := m.params.Get(b.Index)
		items[i] = paramItem{binding: b, value: v, known: ok}
	}
	m.paramList.SetItems(items)
}

// processMessage counts a received message and logs the interesting ones
func (m *controlModel) processMessage(msg gatepro.RawMessage) {
	m.stats.Update(msg, nil)

	switch gatepro.Classify(msg) {
	case gatepro.MsgMotorEvent:
		m.addLogEntry("Motor: "+gatepro.FormatMotorEvent(gatepro.ClassifyMotorEvent(msg)), false)
	case gatepro.MsgAckWriteParams:
		m.addLogEntry("Parameters written", false)
	case gatepro.MsgAckDevInfo:
		m.addLogEntry("Device info: "+gatepro.TextPayload(msg), false)
	case gatepro.MsgAckLearnStatus:
		m.addLogEntry("Learn status: "+gatepro.TextPayload(msg), false)
	case gatepro.MsgAckReadParams:
		if _, err := gatepro.ParseParams(msg); err != nil {
			m.addLogEntry(fmt.Sprintf("Bad parameter read: %v", err), true)
		}
	case gatepro.MsgUnknown:
		m.addLogEntry("Unknown: "+msg.Body(), true)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) stepPosition(delta float64) {
	base := m.state.Position
	if m.state.HasTarget {
		base = m.state.Target
	}
	target := clampUnit(base + delta)
	if err := m.drv.RequestPosition(target); err != nil {
		m.addLogEntry(fmt.Sprintf("Position: %v", err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("Moving to %d%%", int(target*100+0.5)), false)
}

func (m *controlModel) sendCommand(cmd gatepro.Command) {
	if err := m.drv.RequestCommand(cmd); err != nil {
		m.addLogEntry(fmt.Sprintf("Command %s: %v", cmd.Name(), err), true)
		return
	}
	m.addLogEntry("Sent "+cmd.Name(), false)
}

func (m *controlModel) submitParam() {
	p := m.selectedParam()
	if p == nil {
		return
	}
	value, err := parseValue(p.binding.Kind, strings.TrimSpace(m.paramInput.Value()))
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}
	if !m.drv.RequestSetParam(p.binding.Index, value) {
		m.addLogEntry(fmt.Sprintf("%s already %d", p.binding.Name, value), false)
		return
	}
	m.addLogEntry(fmt.Sprintf("Setting %s to %d", p.binding.Name, value), false)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m controlModel) selectedParam() *paramItem {
	item, ok := m.paramList.SelectedItem().(paramItem)
	if !ok {
		return nil
	}
	return &item
}

func clampUnit(v float64) float64 {
	return min(max(v, driver.PositionClosed), driver.PositionOpen)
}
