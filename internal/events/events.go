package events

import "github.com/crewdeck-dev/crewdeck/internal/types"

// Event is a typed domain event value. Mutating operations hand events
// to the dispatcher explicitly after their transaction commits; there
// is no implicit hook anywhere.
type Event interface {
	Name() string
}

// TaskAssigned is raised on task creation and on every reassignment.
// The recipient is the new assignee only.
type TaskAssigned struct {
	TaskID uint
}

func (TaskAssigned) Name() string { return "task_assigned" }

// CommentCreated is raised when a comment lands on a project or task.
// The recipient set is computed by walking the membership graph at
// dispatch time.
type CommentCreated struct {
	CommentID  uint
	ParentKind types.ParentKind
	ParentID   uint
}

func (CommentCreated) Name() string { return "comment_created" }
