package graphgen

const (
	StepInit            = "init"
	StepAnalyzeInput    = "analyzeInput"
	StepRetrieveContext = "retrieveContext"
	StepGenerateTree    = "generateTree"
	StepValidateTree    = "validateTree"
	StepMatchResources  = "matchResources"
	StepPersistGraph    = "persistGraph"
	StepComplete        = "complete"
	StepError           = "error"
)

// Event is one progress notification. Progress is 0-100.
type Event struct {
	Step     string         `json:"step"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// ProgressFunc is called synchronously at every stage transition.
type ProgressFunc func(Event)

func generateProgress(attempt int) int { return 30 + attempt*5 }

// monotonic keeps reported progress from moving backwards when a retry
// re-enters an earlier stage. Error events are passed through unchanged.
func monotonic(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(Event) {}
	}
	last := 0
	return func(e Event) {
		if e.Step != StepError {
			e.Progress = max(e.Progress, last)
			last = e.Progress
		}
		fn(e)
	}
}
