package agent

// TaskStatus is the lifecycle state of a plan task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// ValidTaskStatus reports whether s is a recognized task status.
func ValidTaskStatus(s string) bool {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// PlanTask is one unit of work from an externally supplied plan. IDs are
// caller-assigned and give stable ordering. Tasks are never deleted within a
// run, only replaced wholesale by a new plan.
type PlanTask struct {
	ID          int        `json:"id"`
	Description string     `json:"task"`
	Status      TaskStatus `json:"status"`
}

// nextPending returns the index of the first pending task, or -1.
func nextPending(plan []PlanTask) int {
	for i := range plan {
		if plan[i].Status == TaskPending {
			return i
		}
	}
	return -1
}
