// Package wizard edits a spinesuv configuration file interactively.
package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrsinham/spinesuv/internal/config"
)

// ErrCancelled is returned by Run when the user leaves without saving.
var ErrCancelled = errors.New("wizard cancelled")

// State holds the form values. huh binds to strings, numbers are parsed back
// by Apply.
type State struct {
	DataFolder     string
	WorkDir        string
	Engine         string
	Command        string
	Padding        string
	Timeout        string
	CTMasksFlipped bool
	Density        bool
	FlipSet        string
	RedisAddr      string
	PostgresDSN    string
	LogLevel       string
	LogFormat      string
}

// FromConfig fills the form values from cfg.
func FromConfig(cfg *config.Config) *State {
	return &State{
		DataFolder:     cfg.DataFolder,
		WorkDir:        cfg.WorkDir,
		Engine:         cfg.Segmentation.Engine,
		Command:        cfg.Segmentation.Command,
		Padding:        strconv.Itoa(cfg.Padding),
		Timeout:        cfg.Segmentation.Timeout.String(),
		CTMasksFlipped: cfg.CTMasksFlipped,
		Density:        cfg.Density.Enabled,
		FlipSet:        strings.Join(cfg.Density.FlipSet, ","),
		RedisAddr:      cfg.Checkpoint.Redis.Addr,
		PostgresDSN:    cfg.Results.PostgresDSN,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
	}
}

// Apply writes the form values into cfg and validates the result.
func (s *State) Apply(cfg *config.Config) error {
	padding, err := strconv.Atoi(strings.TrimSpace(s.Padding))
	if err != nil {
		return fmt.Errorf("padding: must be a number")
	}
	timeout, err := time.ParseDuration(strings.TrimSpace(s.Timeout))
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}

	cfg.DataFolder = strings.TrimSpace(s.DataFolder)
	cfg.WorkDir = strings.TrimSpace(s.WorkDir)
	cfg.Segmentation.Engine = s.Engine
	cfg.Segmentation.Command = strings.TrimSpace(s.Command)
	cfg.Segmentation.Timeout = timeout
	cfg.Padding = padding
	cfg.CTMasksFlipped = s.CTMasksFlipped
	cfg.Density.Enabled = s.Density
	cfg.Density.FlipSet = nil
	for _, id := range strings.Split(s.FlipSet, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Density.FlipSet = append(cfg.Density.FlipSet, id)
		}
	}
	cfg.Checkpoint.Redis.Addr = strings.TrimSpace(s.RedisAddr)
	cfg.Results.PostgresDSN = strings.TrimSpace(s.PostgresDSN)
	cfg.Log.Level = s.LogLevel
	cfg.Log.Format = s.LogFormat
	return cfg.Validate()
}

// Model is the bubbletea model of the wizard: one huh form and a help panel
// following the focused field.
type Model struct {
	form      *huh.Form
	helpPanel *HelpPanel
	state     *State
	width     int
	height    int
	done      bool
	cancelled bool
}

// NewModel builds the form over state.
func NewModel(state *State) *Model {
	m := &Model{state: state, helpPanel: NewHelpPanel()}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("data_folder").
				Title("Data Folder").
				Value(&state.DataFolder).
				Validate(required("data folder")),

			huh.NewInput().
				Key("work_dir").
				Title("Work Directory").
				Value(&state.WorkDir).
				Validate(required("work directory")),

			huh.NewSelect[string]().
				Key("engine").
				Title("Segmentation Engine").
				Options(
					huh.NewOption("TotalSegmentator command", config.EngineTotalSegmentator),
					huh.NewOption("Precomputed label volumes", config.EnginePrecomputed),
				).
				Value(&state.Engine),

			huh.NewInput().
				Key("command").
				Title("Engine Command").
				Value(&state.Command),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("padding").
				Title("Crop Padding").
				Value(&state.Padding).
				Validate(validateNonNegativeInt),

			huh.NewInput().
				Key("timeout").
				Title("Engine Timeout").
				Placeholder("e.g., 30m, 0s").
				Value(&state.Timeout).
				Validate(validateDuration),

			huh.NewConfirm().
				Key("ct_masks_flipped").
				Title("CT Masks Flipped").
				Value(&state.CTMasksFlipped),

			huh.NewConfirm().
				Key("density").
				Title("Density Report").
				Value(&state.Density),

			huh.NewInput().
				Key("flip_set").
				Title("Density Flip Set").
				Placeholder("patient-001,patient-004").
				Value(&state.FlipSet),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("redis_addr").
				Title("Redis Address").
				Placeholder("localhost:6379").
				Value(&state.RedisAddr),

			huh.NewInput().
				Key("postgres_dsn").
				Title("PostgreSQL DSN").
				Value(&state.PostgresDSN),

			huh.NewSelect[string]().
				Key("log_level").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&state.LogLevel),

			huh.NewSelect[string]().
				Key("log_format").
				Title("Log Format").
				Options(huh.NewOptions("text", "json")...).
				Value(&state.LogFormat),
		),
	).WithShowHelp(false).WithShowErrors(true)

	return m
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 0 {
		return fmt.Errorf("must be 0 or more")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a duration such as 30m")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.helpPanel.SetSize(msg.Width/3, msg.Height/2)
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	if focused := m.form.GetFocusedField(); focused != nil {
		m.helpPanel.SetField(focused.GetKey())
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.done = true
		return m, tea.Quit
	case huh.StateAborted:
		m.cancelled = true
		return m, tea.Quit
	}
	return m, cmd
}

// View implements tea.Model
func (m *Model) View() string {
	if m.cancelled {
		return "Cancelled.\n"
	}
	if m.done {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("SPINESUV - Configuration"),
		lipgloss.JoinHorizontal(lipgloss.Top, m.form.View(), "  ", m.helpPanel.View()),
		"",
		"Tab: Next field | Enter: Submit | Esc: Cancel",
	)
}

// Done reports whether the form was completed.
func (m *Model) Done() bool { return m.done }

// Cancelled reports whether the user left the wizard.
func (m *Model) Cancelled() bool { return m.cancelled }

// Run edits the configuration at path, creating it from the defaults when
// it does not exist, and saves it when the form is completed.
func Run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	state := FromConfig(cfg)

	p := tea.NewProgram(NewModel(state), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running wizard: %w", err)
	}
	if m, ok := final.(*Model); !ok || !m.Done() {
		return ErrCancelled
	}

	if err := state.Apply(cfg); err != nil {
		return err
	}
	return config.Save(cfg, path)
}
