package agent

// Action is a structured request from the model to perform a side-effecting
// operation. Immutable once parsed.
type Action struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ResultStatus is the outcome of an executed action.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// ActionResult is produced exactly once per executed Action.
type ActionResult struct {
	Output string       `json:"output"`
	Status ResultStatus `json:"status"`
}

// FileWrite is one write_file payload recovered from a response by the batch
// extractor.
type FileWrite struct {
	Path    string
	Content string
}
