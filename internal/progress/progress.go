// Package progress tracks the in-flight download of a single request.
package progress

import (
	"fmt"
	"sync"

	"tubegrab/internal/consts"
	"tubegrab/internal/entity"
	"tubegrab/internal/extractor"
	"tubegrab/pkg/calc"
	"tubegrab/pkg/format"
)

const fullProgress = 100

// Tracker holds the progress of one request. It is passive: it observes the transfer
// and can neither pause nor cancel it. The zero value is ready to use.
type Tracker struct {
	mu       sync.Mutex
	state    entity.ProgressState
	onChange func(entity.ProgressState)
}

// New creates a Tracker. onChange, if not nil, receives every new state.
func New(onChange func(entity.ProgressState)) *Tracker {
	return &Tracker{onChange: onChange}
}

// Report applies a progress event from the extractor.
func (t *Tracker) Report(u extractor.Update) {
	switch u.Status {
	case extractor.StatusDownloading:
		if u.Total <= 0 {
			return
		}

		percent := calc.Percent(u.Downloaded, u.Total)
		status := fmt.Sprintf("%s %d%%", consts.StatusDownloading, percent)

		if speed := calc.Speed(u.Downloaded, u.Started); speed > 0 {
			status += fmt.Sprintf(" (%s/s)", format.Bytes(speed))
		}

		t.set(entity.ProgressState{Percent: percent, Status: status})
	case extractor.StatusFinished:
		t.set(entity.ProgressState{
			Percent:  fullProgress,
			Status:   consts.StatusProcessing,
			Complete: true,
			FilePath: u.Filename,
		})
	}
}

// Reset zeroes the state, used before the first and after every failed attempt.
func (t *Tracker) Reset() {
	t.set(entity.ProgressState{})
}

// Fail zeroes the percent and records the failure message.
func (t *Tracker) Fail(msg string) {
	t.set(entity.ProgressState{Status: msg})
}

// Finish marks the request done with the final output path.
func (t *Tracker) Finish(path string) {
	t.set(entity.ProgressState{
		Percent:  fullProgress,
		Status:   consts.StatusReady,
		Complete: true,
		FilePath: path,
	})
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() entity.ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *Tracker) set(state entity.ProgressState) {
	t.mu.Lock()
	t.state = state
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
}
