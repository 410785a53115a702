package agent

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nxank4/zerog/pkg/segment"
)

// pathCommentRegex matches a single leading comment line that carries a file
// path, an artifact some models prepend to write_file content.
var pathCommentRegex = regexp.MustCompile(`^(?://|#)[ \t]*\S*[/.]\S*[ \t]*\r?\n`)

// ParseAction attempts a JSON-shaped parse of an action payload. The payload
// must be an object with a string "name" and an object "arguments".
func ParseAction(payload string) (Action, bool) {
	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Action{}, false
	}
	if raw.Name == "" {
		return Action{}, false
	}
	args := make(map[string]any)
	if len(raw.Arguments) > 0 {
		if err := json.Unmarshal(raw.Arguments, &args); err != nil {
			return Action{}, false
		}
	}
	return Action{Name: raw.Name, Arguments: args}, true
}

// ExtractFirstAction returns the first well-formed action in text. Malformed
// payloads are discarded silently; any payloads after the first well-formed
// one are ignored by policy, since downstream prompting assumes single-action
// turns.
func ExtractFirstAction(text string) (Action, bool) {
	for _, payload := range delimitedUnits(text, segment.ActionStart, segment.ActionEnd) {
		if action, ok := ParseAction(payload); ok {
			return action, true
		}
		slog.Debug("[Extract] discarding malformed action payload", "bytes", len(payload))
	}
	return Action{}, false
}

// ExtractPlan returns the ordered task list from the first well-formed plan
// payload in text: a JSON array of {id, task, status} objects.
func ExtractPlan(text string) ([]PlanTask, bool) {
	for _, payload := range delimitedUnits(text, segment.PlanStart, segment.PlanEnd) {
		var tasks []PlanTask
		if err := json.Unmarshal([]byte(payload), &tasks); err != nil {
			slog.Debug("[Extract] discarding malformed plan payload", "error", err)
			continue
		}
		if len(tasks) == 0 {
			continue
		}
		valid := true
		for _, task := range tasks {
			if task.Description == "" || !ValidTaskStatus(string(task.Status)) {
				valid = false
				break
			}
		}
		if valid {
			return tasks, true
		}
	}
	return nil, false
}

// ExtractAllWriteActions collects every well-formed write_file action in
// text, in order. Content payloads are normalized with stripPathComment.
func ExtractAllWriteActions(text string) []FileWrite {
	var writes []FileWrite
	for _, payload := range delimitedUnits(text, segment.ActionStart, segment.ActionEnd) {
		action, ok := ParseAction(payload)
		if !ok || action.Name != "write_file" {
			continue
		}
		path, _ := action.Arguments["path"].(string)
		content, _ := action.Arguments["content"].(string)
		if path == "" {
			continue
		}
		writes = append(writes, FileWrite{Path: path, Content: stripPathComment(content)})
	}
	return writes
}

// delimitedUnits returns the payloads of every start/end delimiter pair in
// text, in order of appearance.
func delimitedUnits(text, start, end string) []string {
	var units []string
	for {
		i := strings.Index(text, start)
		if i < 0 {
			return units
		}
		rest := text[i+len(start):]
		j := strings.Index(rest, end)
		if j < 0 {
			return units
		}
		units = append(units, strings.TrimSpace(rest[:j]))
		text = rest[j+len(end):]
	}
}

// stripPathComment drops a leading "file path" comment line that some models
// prepend to file content.
func stripPathComment(content string) string {
	return pathCommentRegex.ReplaceAllString(content, "")
}
