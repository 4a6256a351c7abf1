package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/events"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

type TaskService struct {
	DB     *gorm.DB
	Roles  *roles.Directory
	Authz  *authz.Evaluator
	Cache  cache.Store
	Events *events.Dispatcher
}

func NewTaskService(conn *gorm.DB, dir *roles.Directory, eval *authz.Evaluator, store cache.Store, dispatcher *events.Dispatcher) *TaskService {
	return &TaskService{DB: conn, Roles: dir, Authz: eval, Cache: store, Events: dispatcher}
}

type TaskInput struct {
	Name        string
	Description string
	ProjectID   uint
	AssigneeID  uint
	Status      string
	Priority    string
	DueDate     *time.Time
}

// List scopes tasks by the caller's strongest role: admins see all,
// team owners their teams' tasks, managers their projects' tasks,
// members the tasks assigned to them.
func (s *TaskService) List(user *models.User) ([]models.Task, error) {
	isAdmin, err := s.Roles.Has(s.DB, user.ID, types.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return s.cachedTasks(cache.AllTasksKey(), func(q *gorm.DB) *gorm.DB { return q })
	}

	isOwner, err := s.Roles.Has(s.DB, user.ID, types.RoleTeamOwner)
	if err != nil {
		return nil, err
	}
	if isOwner {
		return s.cachedTasks(cache.OwnerTasksKey(user.ID), func(q *gorm.DB) *gorm.DB {
			return q.Where("project_id IN (?)",
				s.DB.Model(&models.Project{}).Select("projects.id").
					Joins("JOIN teams ON teams.id = projects.team_id").
					Where("teams.owner_id = ?", user.ID))
		})
	}

	isManager, err := s.Roles.Has(s.DB, user.ID, types.RoleProjectManager)
	if err != nil {
		return nil, err
	}
	if isManager {
		return s.cachedTasks(cache.ManagerTasksKey(user.ID), func(q *gorm.DB) *gorm.DB {
			return q.Where("project_id IN (?)",
				s.DB.Model(&models.ProjectWorker{}).Select("project_id").
					Where("user_id = ? AND role = ?", user.ID, types.EdgeManager))
		})
	}

	isMember, err := s.Roles.Has(s.DB, user.ID, types.RoleMember)
	if err != nil {
		return nil, err
	}
	if isMember {
		return s.cachedTasks(cache.MemberTasksKey(user.ID), func(q *gorm.DB) *gorm.DB {
			return q.Where("assignee_id = ?", user.ID)
		})
	}

	return nil, apperrors.New(apperrors.KindForbidden, "you do not have the permissions to list tasks")
}

func (s *TaskService) cachedTasks(key string, scope func(*gorm.DB) *gorm.DB) ([]models.Task, error) {
	v, err := s.Cache.Remember(key, cache.DefaultTTL, func() (interface{}, error) {
		var tasks []models.Task
		err := scope(s.DB.Preload("Project").Preload("Assignee")).Find(&tasks).Error
		return tasks, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Task), nil
}

func (s *TaskService) Get(user *models.User, taskID uint) (*models.Task, error) {
	task, err := s.findTask(s.DB, taskID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanTask(s.DB, user, authz.ActionView, task)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if err := s.DB.Preload("Project").Preload("Assignee").First(task, taskID).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// Create requires the caller to manage the parent project (or be
// admin) and the assignee to be a worker of it at assignment time.
// Assignee eligibility is not re-validated if the worker is removed
// later. A TaskAssigned event is raised after commit.
func (s *TaskService) Create(user *models.User, input TaskInput) (*models.Task, error) {
	task := models.Task{
		Name:        input.Name,
		Description: input.Description,
		ProjectID:   input.ProjectID,
		AssigneeID:  input.AssigneeID,
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
	}
	if task.Status == "" {
		task.Status = "pending"
	}
	if task.Priority == "" {
		task.Priority = "medium"
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, input.ProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.KindNotFound, "project not found")
			}
			return err
		}

		if err := s.requireManages(tx, user, input.ProjectID); err != nil {
			return err
		}
		if err := s.requireWorker(tx, input.AssigneeID, input.ProjectID); err != nil {
			return err
		}

		return tx.Create(&task).Error
	})
	if err != nil {
		return nil, err
	}

	s.forgetTaskKeys(user.ID)
	s.Events.Dispatch(events.TaskAssigned{TaskID: task.ID})
	return &task, nil
}

type UpdateTaskInput struct {
	Name        string
	Description string
	Status      string
	Priority    string
	DueDate     *time.Time
}

func (s *TaskService) Update(user *models.User, taskID uint, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.findTask(s.DB, taskID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanTask(s.DB, user, authz.ActionUpdate, task)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	updates := map[string]interface{}{}
	if input.Name != "" {
		updates["name"] = input.Name
	}
	if input.Description != "" {
		updates["description"] = input.Description
	}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if input.Priority != "" {
		updates["priority"] = input.Priority
	}
	if input.DueDate != nil {
		updates["due_date"] = input.DueDate
	}
	if len(updates) > 0 {
		if err := s.DB.Model(task).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	s.forgetTaskKeys(user.ID)
	return task, nil
}

func (s *TaskService) Delete(user *models.User, taskID uint) error {
	task, err := s.findTask(s.DB, taskID)
	if err != nil {
		return err
	}

	decision, err := s.Authz.CanTask(s.DB, user, authz.ActionDelete, task)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := deleteParentAssets(tx, types.ParentTask, taskID); err != nil {
			return err
		}
		return tx.Delete(task).Error
	})
	if err != nil {
		return err
	}

	s.forgetTaskKeys(user.ID)
	return nil
}

// Assign moves the task to a new assignee and raises a fresh
// TaskAssigned event. Earlier events and their notifications are never
// touched.
func (s *TaskService) Assign(user *models.User, taskID uint, assigneeID uint) (*models.Task, error) {
	var task *models.Task

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = s.findTask(tx, taskID)
		if err != nil {
			return err
		}

		decision, err := s.Authz.CanTask(tx, user, authz.ActionAssign, task)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return apperrors.New(apperrors.KindForbidden, decision.Reason)
		}

		if err := s.requireWorker(tx, assigneeID, task.ProjectID); err != nil {
			return err
		}

		if err := tx.Model(task).Update("assignee_id", assigneeID).Error; err != nil {
			return err
		}
		task.AssigneeID = assigneeID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forgetTaskKeys(user.ID)
	s.Cache.Forget(cache.MemberTasksKey(assigneeID))
	s.Events.Dispatch(events.TaskAssigned{TaskID: taskID})
	return task, nil
}

func (s *TaskService) requireManages(tx *gorm.DB, user *models.User, projectID uint) error {
	isAdmin, err := s.Roles.Has(tx, user.ID, types.RoleAdmin)
	if err != nil {
		return err
	}
	if isAdmin {
		return nil
	}
	role, ok, err := roles.RoleInProject(tx, user.ID, projectID)
	if err != nil {
		return err
	}
	if ok && role == types.EdgeManager {
		return nil
	}
	return apperrors.New(apperrors.KindForbidden, "you do not manage this project")
}

func (s *TaskService) requireWorker(tx *gorm.DB, userID, projectID uint) error {
	_, ok, err := roles.RoleInProject(tx, userID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.KindNotEligible, "the assignee is not a worker on this project")
	}
	return nil
}

func (s *TaskService) forgetTaskKeys(userID uint) {
	s.Cache.Forget(cache.AllTasksKey())
	s.Cache.Forget(cache.OwnerTasksKey(userID))
	s.Cache.Forget(cache.ManagerTasksKey(userID))
	s.Cache.Forget(cache.MemberTasksKey(userID))
}

func (s *TaskService) findTask(tx *gorm.DB, taskID uint) (*models.Task, error) {
	var task models.Task
	if err := tx.First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "task not found")
		}
		return nil, err
	}
	return &task, nil
}
