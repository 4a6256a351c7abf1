package services

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// ProjectService owns the project half of the membership graph: worker
// edges with their role attribute, and the single manager slot per
// project.
type ProjectService struct {
	DB    *gorm.DB
	Roles *roles.Directory
	Authz *authz.Evaluator
	Cache cache.Store
}

func NewProjectService(conn *gorm.DB, dir *roles.Directory, eval *authz.Evaluator, store cache.Store) *ProjectService {
	return &ProjectService{DB: conn, Roles: dir, Authz: eval, Cache: store}
}

type CreateProjectInput struct {
	Name        string
	Description string
	TeamID      uint
	DueDate     *time.Time
	WorkerIDs   []uint
}

// List scopes the listing by the caller's strongest role: admins see
// everything, team owners see their teams' projects, managers see the
// projects they manage.
func (s *ProjectService) List(user *models.User) ([]models.Project, error) {
	isAdmin, err := s.Roles.Has(s.DB, user.ID, types.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return s.cachedProjects(cache.AllProjectsKey(), func(q *gorm.DB) *gorm.DB { return q })
	}

	isOwner, err := s.Roles.Has(s.DB, user.ID, types.RoleTeamOwner)
	if err != nil {
		return nil, err
	}
	if isOwner {
		return s.cachedProjects(cache.OwnerProjectsKey(user.ID), func(q *gorm.DB) *gorm.DB {
			return q.Where("team_id IN (?)",
				s.DB.Model(&models.Team{}).Select("id").Where("owner_id = ?", user.ID))
		})
	}

	isManager, err := s.Roles.Has(s.DB, user.ID, types.RoleProjectManager)
	if err != nil {
		return nil, err
	}
	if isManager {
		return s.cachedProjects(cache.ManagerProjectsKey(user.ID), func(q *gorm.DB) *gorm.DB {
			return q.Where("id IN (?)",
				s.DB.Model(&models.ProjectWorker{}).Select("project_id").
					Where("user_id = ? AND role = ?", user.ID, types.EdgeManager))
		})
	}

	return nil, apperrors.New(apperrors.KindForbidden, "you do not have the permissions to list projects")
}

func (s *ProjectService) cachedProjects(key string, scope func(*gorm.DB) *gorm.DB) ([]models.Project, error) {
	v, err := s.Cache.Remember(key, cache.DefaultTTL, func() (interface{}, error) {
		var projects []models.Project
		err := scope(s.DB.Preload("Creator").Preload("Team").Preload("Workers")).
			Find(&projects).Error
		return projects, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Project), nil
}

// Get loads one project with its relationships after the view check.
func (s *ProjectService) Get(user *models.User, projectID uint) (*models.Project, error) {
	project, err := s.findProject(s.DB, projectID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanProject(s.DB, user, authz.ActionView, project)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if err := s.DB.Preload("Creator").Preload("Team").Preload("Workers.User").Preload("Tasks").
		First(project, projectID).Error; err != nil {
		return nil, err
	}
	return project, nil
}

// Create attaches the creator as the manager edge and every other
// worker as a member edge, granting the corresponding labels. A project
// is never created without a manager.
func (s *ProjectService) Create(user *models.User, input CreateProjectInput) (*models.Project, error) {
	project := models.Project{
		Name:        input.Name,
		Description: input.Description,
		TeamID:      input.TeamID,
		DueDate:     input.DueDate,
		CreatorID:   user.ID,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.First(&team, input.TeamID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.KindNotFound, "team not found")
			}
			return err
		}

		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		if err := s.addWorkerEdge(tx, project.ID, user.ID, types.EdgeManager); err != nil {
			return err
		}
		for _, workerID := range input.WorkerIDs {
			if workerID == user.ID {
				continue
			}
			if err := s.addWorkerEdge(tx, project.ID, workerID, types.EdgeMember); err != nil {
				return err
			}
		}

		return s.Roles.Grant(tx, user.ID, types.RoleProjectManager)
	})
	if err != nil {
		return nil, err
	}

	s.forgetProjectKeys(user.ID)
	return &project, nil
}

type UpdateProjectInput struct {
	Name        string
	Description string
	Status      string
	DueDate     *time.Time
	WorkerIDs   []uint
}

// Update applies non-empty fields and attaches any new workers as
// members.
func (s *ProjectService) Update(user *models.User, projectID uint, input UpdateProjectInput) (*models.Project, error) {
	project, err := s.findProject(s.DB, projectID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanProject(s.DB, user, authz.ActionUpdate, project)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
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
		if input.DueDate != nil {
			updates["due_date"] = input.DueDate
		}
		if len(updates) > 0 {
			if err := tx.Model(project).Updates(updates).Error; err != nil {
				return err
			}
		}
		for _, workerID := range input.WorkerIDs {
			if err := s.addWorkerEdge(tx, projectID, workerID, types.EdgeMember); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forgetProjectKeys(user.ID)
	return project, nil
}

// Delete removes the project and everything it owns, reconciling every
// former worker's labels.
func (s *ProjectService) Delete(user *models.User, projectID uint) error {
	project, err := s.findProject(s.DB, projectID)
	if err != nil {
		return err
	}

	decision, err := s.Authz.CanProject(s.DB, user, authz.ActionDelete, project)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return deleteProjectTree(tx, s.Roles, project)
	})
	if err != nil {
		return err
	}

	s.forgetProjectKeys(user.ID)
	return nil
}

// AddWorkers attaches member edges and grants the member label.
func (s *ProjectService) AddWorkers(user *models.User, projectID uint, workerIDs []uint) (*models.Project, error) {
	project, err := s.findProject(s.DB, projectID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanProject(s.DB, user, authz.ActionAddWorker, project)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		for _, workerID := range workerIDs {
			if err := s.addWorkerEdge(tx, projectID, workerID, types.EdgeMember); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forgetProjectKeys(user.ID)
	return project, nil
}

// RemoveWorkers detaches worker edges. Removing whoever holds the
// manager edge fails: the manager slot moves only through
// ChangeManager. Tasks assigned to removed workers are left in place
// and flagged, not reassigned.
func (s *ProjectService) RemoveWorkers(user *models.User, projectID uint, workerIDs []uint) (*models.Project, error) {
	project, err := s.findProject(s.DB, projectID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanProject(s.DB, user, authz.ActionRemoveWorker, project)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		managerID, hasManager, err := roles.ManagerOf(tx, projectID)
		if err != nil {
			return err
		}
		for _, id := range workerIDs {
			if hasManager && id == managerID {
				return apperrors.New(apperrors.KindInvariantViolation, "you can not remove the project manager")
			}
		}

		if err := tx.Unscoped().
			Where("project_id = ? AND user_id IN ?", projectID, workerIDs).
			Delete(&models.ProjectWorker{}).Error; err != nil {
			return err
		}

		for _, id := range workerIDs {
			if err := s.Roles.Reconcile(tx, id, types.RoleMember); err != nil {
				return err
			}
		}

		var dangling int64
		if err := tx.Model(&models.Task{}).
			Where("project_id = ? AND assignee_id IN ?", projectID, workerIDs).
			Count(&dangling).Error; err != nil {
			return err
		}
		if dangling > 0 {
			log.Printf("Project %d has %d tasks assigned to removed workers", projectID, dangling)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forgetProjectKeys(user.ID)
	return project, nil
}

// ChangeManager moves the manager slot to another worker: the current
// manager edge is demoted to member and the target edge promoted, in
// one transaction, with both principals' labels reconciled. Any failed
// precondition aborts before mutation.
func (s *ProjectService) ChangeManager(user *models.User, projectID uint, newManagerID uint) (*models.Project, error) {
	var project *models.Project
	var previousManagerID uint

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = s.findProject(tx, projectID)
		if err != nil {
			return err
		}

		decision, err := s.Authz.CanProject(tx, user, authz.ActionChangeManager, project)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return apperrors.New(apperrors.KindForbidden, decision.Reason)
		}

		_, isWorker, err := roles.RoleInProject(tx, newManagerID, projectID)
		if err != nil {
			return err
		}
		if !isWorker {
			return apperrors.New(apperrors.KindNotEligible, "the new project manager is not a worker on this project")
		}

		managerID, hasManager, err := roles.ManagerOf(tx, projectID)
		if err != nil {
			return err
		}
		if hasManager && managerID == newManagerID {
			return apperrors.New(apperrors.KindNoOpTransfer, "the user is already the project manager")
		}
		previousManagerID = managerID

		if hasManager {
			if err := tx.Model(&models.ProjectWorker{}).
				Where("project_id = ? AND user_id = ?", projectID, managerID).
				Update("role", types.EdgeMember).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.ProjectWorker{}).
			Where("project_id = ? AND user_id = ?", projectID, newManagerID).
			Update("role", types.EdgeManager).Error; err != nil {
			return err
		}

		if err := s.Roles.Grant(tx, newManagerID, types.RoleProjectManager); err != nil {
			return err
		}
		if hasManager {
			return s.Roles.Reconcile(tx, managerID, types.RoleProjectManager)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.ManagerProjectsKey(newManagerID))
	s.Cache.Forget(cache.ManagerProjectsKey(previousManagerID))
	s.Cache.Forget(cache.ManagerProjectsKey(user.ID))
	s.Cache.Forget(cache.OwnerProjectsKey(user.ID))
	s.Cache.Forget(cache.AllProjectsKey())
	return project, nil
}

// Completed returns projects with status completed.
func (s *ProjectService) Completed() ([]models.Project, error) {
	var projects []models.Project
	err := s.DB.Where("status = ?", "completed").Find(&projects).Error
	return projects, err
}

// CompletedTaskCounts returns the number of completed tasks per
// project.
func (s *ProjectService) CompletedTaskCounts() (map[uint]int64, error) {
	type row struct {
		ProjectID uint
		Total     int64
	}
	var rows []row
	err := s.DB.Model(&models.Task{}).
		Select("project_id, count(*) as total").
		Where("status = ?", "completed").
		Group("project_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.ProjectID] = r.Total
	}
	return counts, nil
}

// addWorkerEdge creates one worker edge. Attaching a second manager
// edge is a role conflict: the slot moves only through an explicit
// demotion inside ChangeManager.
func (s *ProjectService) addWorkerEdge(tx *gorm.DB, projectID, userID uint, role types.Role) error {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Newf(apperrors.KindNotFound, "user %d not found", userID)
		}
		return err
	}

	if role == types.EdgeManager {
		_, hasManager, err := roles.ManagerOf(tx, projectID)
		if err != nil {
			return err
		}
		if hasManager {
			return apperrors.New(apperrors.KindRoleConflict, "this project already has a manager")
		}
	}

	var existing models.ProjectWorker
	err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := tx.Create(&models.ProjectWorker{ProjectID: projectID, UserID: userID, Role: role}).Error; err != nil {
		return err
	}
	return s.Roles.Grant(tx, userID, types.RoleMember)
}

func (s *ProjectService) forgetProjectKeys(userID uint) {
	s.Cache.Forget(cache.OwnerProjectsKey(userID))
	s.Cache.Forget(cache.ManagerProjectsKey(userID))
	s.Cache.Forget(cache.AllProjectsKey())
}

func (s *ProjectService) findProject(tx *gorm.DB, projectID uint) (*models.Project, error) {
	var project models.Project
	if err := tx.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "project not found")
		}
		return nil, err
	}
	return &project, nil
}

// deleteProjectTree removes a project with its worker edges, tasks,
// comments, and attachments, then reconciles the labels of every
// principal that held an edge. Shared with team deletion.
func deleteProjectTree(tx *gorm.DB, dir *roles.Directory, project *models.Project) error {
	var edges []models.ProjectWorker
	if err := tx.Where("project_id = ?", project.ID).Find(&edges).Error; err != nil {
		return err
	}

	if err := tx.Unscoped().Where("project_id = ?", project.ID).Delete(&models.ProjectWorker{}).Error; err != nil {
		return err
	}

	var tasks []models.Task
	if err := tx.Where("project_id = ?", project.ID).Find(&tasks).Error; err != nil {
		return err
	}
	for _, task := range tasks {
		if err := deleteParentAssets(tx, types.ParentTask, task.ID); err != nil {
			return err
		}
	}
	if err := tx.Where("project_id = ?", project.ID).Delete(&models.Task{}).Error; err != nil {
		return err
	}

	if err := deleteParentAssets(tx, types.ParentProject, project.ID); err != nil {
		return err
	}

	if err := tx.Delete(project).Error; err != nil {
		return err
	}

	for _, edge := range edges {
		if err := dir.Reconcile(tx, edge.UserID, types.RoleMember); err != nil {
			return err
		}
		if err := dir.Reconcile(tx, edge.UserID, types.RoleProjectManager); err != nil {
			return err
		}
	}
	return nil
}

// deleteParentAssets cascades comments and attachments for one parent,
// including attachments hanging off deleted comments.
func deleteParentAssets(tx *gorm.DB, kind types.ParentKind, id uint) error {
	var comments []models.Comment
	if err := tx.Where("parent_kind = ? AND parent_id = ?", kind, id).Find(&comments).Error; err != nil {
		return err
	}
	for _, comment := range comments {
		if err := tx.Where("parent_kind = ? AND parent_id = ?", types.ParentComment, comment.ID).
			Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("parent_kind = ? AND parent_id = ?", kind, id).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	return tx.Where("parent_kind = ? AND parent_id = ?", kind, id).Delete(&models.Attachment{}).Error
}
