package authz

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// Action is the closed set of things a principal can attempt. Rules map
// from (entity type, action) at compile time; there are no free-form
// permission strings.
type Action string

const (
	ActionView          Action = "view"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionAddMember     Action = "add_member"
	ActionRemoveMember  Action = "remove_member"
	ActionChangeOwner   Action = "change_owner"
	ActionAddWorker     Action = "add_worker"
	ActionRemoveWorker  Action = "remove_worker"
	ActionChangeManager Action = "change_manager"
	ActionComment       Action = "comment"
	ActionAttach        Action = "attach"
	ActionAssign        Action = "assign"
	ActionMarkRead      Action = "mark_read"
)

// Decision is the outcome of an authorization check. Reason is part of
// the contract: handlers surface it verbatim on deny.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluator answers "can principal P perform action A on entity E" by
// composing global labels, edge-role lookups, and per-entity rules.
// It is stateless: every check reads through the given connection.
type Evaluator struct {
	Roles *roles.Directory
}

func NewEvaluator(dir *roles.Directory) *Evaluator {
	return &Evaluator{Roles: dir}
}

// Can dispatches on the concrete entity type. Unknown entity types are
// a programming error and always deny.
func (e *Evaluator) Can(tx *gorm.DB, user *models.User, action Action, entity interface{}) (Decision, error) {
	switch v := entity.(type) {
	case *models.Team:
		return e.CanTeam(tx, user, action, v)
	case *models.Project:
		return e.CanProject(tx, user, action, v)
	case *models.Task:
		return e.CanTask(tx, user, action, v)
	case *models.Comment:
		return e.CanComment(tx, user, action, v)
	case *models.Attachment:
		return e.CanAttachment(tx, user, action, v)
	case *models.Notification:
		return e.CanNotification(tx, user, action, v)
	}
	return Deny(fmt.Sprintf("no authorization rules for entity %T", entity)), nil
}

// CanTeam: admin, or a team owner acting on their own team. Ownership
// transfer additionally allows the current owner even if the label is
// somehow missing.
func (e *Evaluator) CanTeam(tx *gorm.DB, user *models.User, action Action, team *models.Team) (Decision, error) {
	isAdmin, err := e.Roles.Has(tx, user.ID, types.RoleAdmin)
	if err != nil {
		return Decision{}, err
	}
	if isAdmin {
		return Allow(), nil
	}

	ownsLabel, err := e.Roles.Has(tx, user.ID, types.RoleTeamOwner)
	if err != nil {
		return Decision{}, err
	}
	if ownsLabel && team.OwnerID == user.ID {
		return Allow(), nil
	}

	if action == ActionChangeOwner && team.OwnerID == user.ID {
		return Allow(), nil
	}

	return Deny(fmt.Sprintf("you do not have the permissions to %s this team", verb(action))), nil
}

// CanProject: admin, the parent team's owner, or the project's manager.
// Commenting and attaching are open to any worker of the project.
func (e *Evaluator) CanProject(tx *gorm.DB, user *models.User, action Action, project *models.Project) (Decision, error) {
	isAdmin, err := e.Roles.Has(tx, user.ID, types.RoleAdmin)
	if err != nil {
		return Decision{}, err
	}
	if isAdmin {
		return Allow(), nil
	}

	ownsTeam, err := e.ownsParentTeam(tx, user.ID, project)
	if err != nil {
		return Decision{}, err
	}
	if ownsTeam {
		return Allow(), nil
	}

	edgeRole, hasEdge, err := roles.RoleInProject(tx, user.ID, project.ID)
	if err != nil {
		return Decision{}, err
	}

	switch action {
	case ActionComment, ActionAttach:
		if hasEdge {
			return Allow(), nil
		}
	case ActionChangeManager:
		// Only admin or the team owner may move the manager slot.
	default:
		if hasEdge && edgeRole == types.EdgeManager {
			return Allow(), nil
		}
	}

	return Deny(fmt.Sprintf("you do not have the permissions to %s this project", verb(action))), nil
}

// CanTask: the project's manager or the task's assignee. There is no
// admin bypass on view/update/delete; assignment additionally allows
// admin.
func (e *Evaluator) CanTask(tx *gorm.DB, user *models.User, action Action, task *models.Task) (Decision, error) {
	edgeRole, hasEdge, err := roles.RoleInProject(tx, user.ID, task.ProjectID)
	if err != nil {
		return Decision{}, err
	}
	isManager := hasEdge && edgeRole == types.EdgeManager

	if isManager || task.AssigneeID == user.ID {
		return Allow(), nil
	}

	switch action {
	case ActionAssign, ActionComment, ActionAttach:
		isAdmin, err := e.Roles.Has(tx, user.ID, types.RoleAdmin)
		if err != nil {
			return Decision{}, err
		}
		if isAdmin {
			return Allow(), nil
		}
	}

	return Deny(fmt.Sprintf("you do not have the permissions to %s this task", verb(action))), nil
}

// CanComment: updates are restricted to the author; attaching requires
// admin or the author; everything else delegates to the parent entity's
// rules.
func (e *Evaluator) CanComment(tx *gorm.DB, user *models.User, action Action, comment *models.Comment) (Decision, error) {
	switch action {
	case ActionUpdate:
		if comment.AuthorID == user.ID {
			return Allow(), nil
		}
		return Deny("you do not have the permissions to update this comment"), nil
	case ActionAttach:
		isAdmin, err := e.Roles.Has(tx, user.ID, types.RoleAdmin)
		if err != nil {
			return Decision{}, err
		}
		if isAdmin || comment.AuthorID == user.ID {
			return Allow(), nil
		}
		return Deny("you do not have the permissions to add attachments to this comment"), nil
	}

	return e.canOnParent(tx, user, action, comment.ParentKind, comment.ParentID)
}

// CanAttachment delegates to the parent entity's rules. A comment
// parent falls back to the comment's own attach rule.
func (e *Evaluator) CanAttachment(tx *gorm.DB, user *models.User, action Action, attachment *models.Attachment) (Decision, error) {
	if attachment.ParentKind == types.ParentComment {
		comment, err := findComment(tx, attachment.ParentID)
		if err != nil {
			return Decision{}, err
		}
		return e.CanComment(tx, user, ActionAttach, comment)
	}
	return e.canOnParent(tx, user, commentishAction(action), attachment.ParentKind, attachment.ParentID)
}

// CanNotification: a principal touches only its own notifications;
// admin may touch any.
func (e *Evaluator) CanNotification(tx *gorm.DB, user *models.User, action Action, notification *models.Notification) (Decision, error) {
	if notification.UserID == user.ID {
		return Allow(), nil
	}
	isAdmin, err := e.Roles.Has(tx, user.ID, types.RoleAdmin)
	if err != nil {
		return Decision{}, err
	}
	if isAdmin {
		return Allow(), nil
	}
	return Deny(fmt.Sprintf("you do not have the permissions to %s this notification", verb(action))), nil
}

// canOnParent resolves the polymorphic parent and applies its rule set.
// The kind set is closed: project, task, comment.
func (e *Evaluator) canOnParent(tx *gorm.DB, user *models.User, action Action, kind types.ParentKind, id uint) (Decision, error) {
	switch kind {
	case types.ParentProject:
		var project models.Project
		if err := tx.First(&project, id).Error; err != nil {
			return Decision{}, err
		}
		return e.CanProject(tx, user, commentishAction(action), &project)
	case types.ParentTask:
		var task models.Task
		if err := tx.First(&task, id).Error; err != nil {
			return Decision{}, err
		}
		return e.CanTask(tx, user, commentishAction(action), &task)
	case types.ParentComment:
		comment, err := findComment(tx, id)
		if err != nil {
			return Decision{}, err
		}
		return e.CanComment(tx, user, action, comment)
	}
	return Deny(fmt.Sprintf("unknown parent kind %q", kind)), nil
}

func (e *Evaluator) ownsParentTeam(tx *gorm.DB, userID uint, project *models.Project) (bool, error) {
	hasLabel, err := e.Roles.Has(tx, userID, types.RoleTeamOwner)
	if err != nil || !hasLabel {
		return false, err
	}
	var team models.Team
	if err := tx.First(&team, project.TeamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return team.OwnerID == userID, nil
}

func findComment(tx *gorm.DB, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := tx.First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// commentishAction maps view-like delegated actions onto the parent's
// comment/attach gate, which is the wider predicate the original rules
// use for anything hanging off a project or task.
func commentishAction(action Action) Action {
	switch action {
	case ActionComment, ActionAttach:
		return action
	}
	return ActionComment
}

func verb(action Action) string {
	switch action {
	case ActionAddMember:
		return "add members to"
	case ActionRemoveMember:
		return "remove members from"
	case ActionChangeOwner:
		return "transfer ownership of"
	case ActionAddWorker:
		return "add workers to"
	case ActionRemoveWorker:
		return "remove workers from"
	case ActionChangeManager:
		return "change the manager of"
	case ActionComment:
		return "comment on"
	case ActionAttach:
		return "add attachments to"
	case ActionMarkRead:
		return "mark as read"
	}
	return string(action)
}
