package datarecording

import (
	"os"
	"strings"
	"time"
)

const execTimeLayout = "2006-01-02 15:04:05.000000000"

type execInfo struct {
	RunID    string
	Property string
	Value    string
}

// ExecRecorder records facts about one execution of the simulator: when it
// started and ended, how it was invoked and with which parameters.
type ExecRecorder struct {
	runID     string
	tableName string
	recorder  DataRecorder
	entries   []execInfo
}

// NewExecRecorder creates an ExecRecorder writing into the exec_info table.
func NewExecRecorder(runID string, recorder DataRecorder) *ExecRecorder {
	e := &ExecRecorder{
		runID:     runID,
		tableName: "exec_info",
		recorder:  recorder,
	}

	recorder.CreateTable(e.tableName, execInfo{})

	return e
}

// Start records the start time and the command line.
func (e *ExecRecorder) Start() {
	e.Property("Start Time", time.Now().Format(execTimeLayout))
	e.Property("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err == nil {
		e.Property("Working Directory", cwd)
	}
}

// Property records one key-value fact.
func (e *ExecRecorder) Property(name, value string) {
	e.entries = append(e.entries, execInfo{
		RunID:    e.runID,
		Property: name,
		Value:    value,
	})
}

// End writes the recorded facts together with the end time.
func (e *ExecRecorder) End() {
	e.Property("End Time", time.Now().Format(execTimeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(e.tableName, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
