package execshell

import "time"

// PipelineEventKind identifies a point in a pipeline's lifecycle.
type PipelineEventKind int

// Pipeline lifecycle points reported by SecureProcessRunner.
const (
	PipelineStarted PipelineEventKind = iota
	PipelineExited
	PipelineAborted
)

// PipelineEvent describes one lifecycle point of a pipeline. Result.Transcript is already redacted.
// Failure is set only for PipelineAborted, when no exit status could be observed.
type PipelineEvent struct {
	Kind    PipelineEventKind
	Command ShellCommand
	Result  PipelineResult
	Failure error
	Elapsed time.Duration
}

// Succeeded reports whether the pipeline exited with status zero.
func (event PipelineEvent) Succeeded() bool {
	return event.Kind == PipelineExited && event.Result.ExitCode == 0
}

// PipelineObserver receives pipeline lifecycle events.
type PipelineObserver interface {
	ObservePipeline(event PipelineEvent)
}

// PipelineObserverFunc adapts a plain function to PipelineObserver.
type PipelineObserverFunc func(event PipelineEvent)

// ObservePipeline calls the wrapped function.
func (observerFunc PipelineObserverFunc) ObservePipeline(event PipelineEvent) {
	observerFunc(event)
}

func discardPipelineEvent(PipelineEvent) {}
