package pipe

import "time"

// Recorder receives timing signals from an engine. Checkpoint is called at
// most once per response, when the first pagelet below the high-priority
// threshold starts rendering.
type Recorder interface {
	Checkpoint()
}

// FrameRecorder is implemented by recorders that also want one call per
// streamed frame.
type FrameRecorder interface {
	RecordFrame(id string, priority int, elapsed time.Duration)
}

// FinalizeRecorder is implemented by recorders that want the outcome of
// the first Finalize of a response that was not skipped by the caller
// guard.
type FinalizeRecorder interface {
	RecordFinalize(mode string, frames int, err error)
}
