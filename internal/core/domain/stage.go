package domain

import (
	"fmt"
	"time"
)

// Stage is a step of the per-query pipeline.
type Stage string

// Query pipeline stages in execution order, plus the failed sink.
const (
	StageReceived   Stage = "received"
	StageEmbedding  Stage = "embedding"
	StageSearching  Stage = "searching"
	StageRanking    Stage = "ranking"
	StagePrompting  Stage = "prompting"
	StageCompleting Stage = "completing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var stageOrder = []Stage{
	StageReceived,
	StageEmbedding,
	StageSearching,
	StageRanking,
	StagePrompting,
	StageCompleting,
	StageDone,
}

// Next returns the stage that must follow s.
func (s Stage) Next() (Stage, bool) {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// StageTiming records when a stage was entered, relative to the trace start.
type StageTiming struct {
	Stage Stage
	At    time.Duration
}

// Trace tracks one query through the pipeline. It is not safe for
// concurrent use; each query owns its trace.
type Trace struct {
	now        func() time.Time
	start      time.Time
	current    Stage
	failedFrom Stage
	timings    []StageTiming
}

// NewTrace starts a trace in the received stage.
func NewTrace() *Trace {
	return NewTraceWithClock(time.Now)
}

// NewTraceWithClock starts a trace using the given clock.
func NewTraceWithClock(now func() time.Time) *Trace {
	start := now()
	return &Trace{
		now:     now,
		start:   start,
		current: StageReceived,
		timings: []StageTiming{{Stage: StageReceived}},
	}
}

// Current returns the current stage.
func (t *Trace) Current() Stage {
	return t.current
}

// Advance moves to next, which must be the immediate successor.
func (t *Trace) Advance(next Stage) error {
	want, ok := t.current.Next()
	if !ok || want != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.current, next)
	}
	t.current = next
	t.timings = append(t.timings, StageTiming{Stage: next, At: t.now().Sub(t.start)})
	return nil
}

// Fail moves the trace to failed and returns the originating stage.
// Failing a finished or already failed trace is a no-op.
func (t *Trace) Fail() Stage {
	switch t.current {
	case StageFailed:
		return t.failedFrom
	case StageDone:
		return StageDone
	}
	t.failedFrom = t.current
	t.current = StageFailed
	t.timings = append(t.timings, StageTiming{Stage: StageFailed, At: t.now().Sub(t.start)})
	return t.failedFrom
}

// FailedFrom returns the stage that failed, or empty if the trace has not failed.
func (t *Trace) FailedFrom() Stage {
	return t.failedFrom
}

// Elapsed returns the time since the trace started.
func (t *Trace) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Timings returns a copy of the recorded transitions.
func (t *Trace) Timings() []StageTiming {
	out := make([]StageTiming, len(t.timings))
	copy(out, t.timings)
	return out
}
