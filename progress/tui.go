package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	pbar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	nameWidth   = 36
	maxBarWidth = 60
)

var (
	styleName = lipgloss.NewStyle().Foreground(lipgloss.Color("#ebdbb2")).Width(nameWidth)
	styleDone = lipgloss.NewStyle().Foreground(lipgloss.Color("#8ec07c"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("#928374"))
)

type addTaskMsg struct {
	id    int64
	name  string
	total int64
}

type updateTaskMsg struct {
	id        int64
	completed int64
}

type finishTaskMsg struct{ id int64 }

type logLineMsg struct{ text string }

type taskState struct {
	name      string
	total     int64
	completed int64
	done      bool
}

func (s *taskState) fraction() float64 {
	if s.total <= 0 {
		return 0
	}
	f := float64(s.completed) / float64(s.total)
	return min(max(f, 0), 1)
}

type model struct {
	order    []int64
	tasks    map[int64]*taskState
	bar      pbar.Model
	finished int
}

func newModel() model {
	return model{
		tasks: make(map[int64]*taskState),
		bar:   pbar.New(pbar.WithDefaultGradient(), pbar.WithWidth(40)),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case addTaskMsg:
		m.tasks[msg.id] = &taskState{name: msg.name, total: msg.total}
		m.order = append(m.order, msg.id)
	case updateTaskMsg:
		if s, ok := m.tasks[msg.id]; ok && !s.done {
			s.completed = msg.completed
		}
	case finishTaskMsg:
		if s, ok := m.tasks[msg.id]; ok && !s.done {
			s.done = true
			m.finished++
			return m, tea.Println(styleDone.Render("✓ ") + s.name)
		}
	case logLineMsg:
		return m, tea.Println(msg.text)
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-nameWidth-4, 10), maxBarWidth)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	for _, id := range m.order {
		s := m.tasks[id]
		if s.done {
			continue
		}
		b.WriteString(styleName.Render(truncate(s.name, nameWidth-1)))
		b.WriteString(m.bar.ViewAs(s.fraction()))
		b.WriteByte('\n')
	}
	if len(m.order) > 0 {
		b.WriteString(styleDim.Render(fmt.Sprintf("%d/%d finished", m.finished, len(m.order))))
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// TUI renders one progress bar per active task. It is also an io.Writer so
// log lines can be printed above the bars without tearing them.
type TUI struct {
	program  *tea.Program
	fallback io.Writer
	nextID   atomic.Int64
	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// StartTUI starts rendering to out. Log lines written after Stop go to out directly.
func StartTUI(out io.Writer) *TUI {
	t := &TUI{
		program: tea.NewProgram(newModel(),
			tea.WithInput(nil),
			tea.WithOutput(out),
			tea.WithoutSignalHandler(),
		),
		fallback: out,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		_, _ = t.program.Run()
		t.stopped.Store(true)
	}()
	return t
}

func (t *TUI) AddTask(name string, total int64) Task {
	id := t.nextID.Add(1)
	t.program.Send(addTaskMsg{id: id, name: name, total: total})
	return &tuiTask{t: t, id: id}
}

func (t *TUI) Write(p []byte) (int, error) {
	if t.stopped.Load() {
		return t.fallback.Write(p)
	}
	t.program.Send(logLineMsg{text: strings.TrimRight(string(p), "\n")})
	return len(p), nil
}

// Stop flushes the final frame and waits for the renderer to exit.
func (t *TUI) Stop() {
	t.stopOnce.Do(func() {
		t.program.Quit()
		<-t.done
		t.stopped.Store(true)
	})
}

type tuiTask struct {
	t  *TUI
	id int64
}

func (k *tuiTask) Update(completed int64) {
	k.t.program.Send(updateTaskMsg{id: k.id, completed: completed})
}

func (k *tuiTask) Finish() {
	k.t.program.Send(finishTaskMsg{id: k.id})
}
