// Package progress is the shared surface workers report task progress to.
// Every Reporter in this package is safe for concurrent use.
package progress

// Scale is the fixed-point resolution used for fractional progress: a task
// registered with total Scale reports 0.01% steps.
const Scale = 10000

// Reporter registers named tasks.
type Reporter interface {
	AddTask(name string, total int64) Task
}

// Task is one named unit of progress owned by a single worker.
type Task interface {
	Update(completed int64)
	Finish()
}

// Nop discards all progress.
type Nop struct{}

func (Nop) AddTask(string, int64) Task { return nopTask{} }

type nopTask struct{}

func (nopTask) Update(int64) {}
func (nopTask) Finish()      {}
