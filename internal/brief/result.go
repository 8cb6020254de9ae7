package brief

// StageStatus tags the outcome of one stage.
type StageStatus int

const (
	// StatusOK means the stage got a live model/search result.
	StatusOK StageStatus = iota
	// StatusDegraded means the stage fell back to its deterministic
	// local value. The pipeline continues normally.
	StatusDegraded
	// StatusFatal means the stage could not produce anything usable.
	// Only a Fatal result may set the pipeline error.
	StatusFatal
)

func (s StageStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFatal:
		return "fatal"
	}
	return "unknown"
}

// StageResult is the tagged outcome every stage returns to the engine.
type StageResult struct {
	Status StageStatus
	Reason string
}

func stageOK() StageResult {
	return StageResult{Status: StatusOK}
}

func stageDegraded(reason string) StageResult {
	return StageResult{Status: StatusDegraded, Reason: reason}
}

func stageFatal(reason string) StageResult {
	return StageResult{Status: StatusFatal, Reason: reason}
}

// apply records a fatal result on the state. Ok and Degraded results
// never touch the error field.
func (r StageResult) apply(s *PipelineState) {
	if r.Status == StatusFatal {
		s.Err = r.Reason
	}
}
