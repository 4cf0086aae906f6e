package progress

import (
	"log"
	"sync"
)

// LogReporter writes a log line whenever a task crosses a 10% step.
type LogReporter struct {
	logger *log.Logger
	mu     sync.Mutex
}

func NewLogReporter(logger *log.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) AddTask(name string, total int64) Task {
	r.logger.Printf("%s: started", name)
	return &logTask{r: r, name: name, total: total, step: -1}
}

type logTask struct {
	r     *LogReporter
	name  string
	total int64
	step  int64
	done  bool
}

func (t *logTask) Update(completed int64) {
	if t.total <= 0 {
		return
	}
	step := completed * 10 / t.total
	step = min(max(step, 0), 10)

	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if t.done || step <= t.step {
		return
	}
	t.step = step
	t.r.logger.Printf("%s: %d%%", t.name, step*10)
}

func (t *logTask) Finish() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.r.logger.Printf("%s: done", t.name)
}
