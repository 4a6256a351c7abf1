package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/events"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

type CommentService struct {
	DB     *gorm.DB
	Roles  *roles.Directory
	Authz  *authz.Evaluator
	Cache  cache.Store
	Events *events.Dispatcher
}

func NewCommentService(conn *gorm.DB, dir *roles.Directory, eval *authz.Evaluator, store cache.Store, dispatcher *events.Dispatcher) *CommentService {
	return &CommentService{DB: conn, Roles: dir, Authz: eval, Cache: store, Events: dispatcher}
}

// List returns all comments for admins and the caller's own comments
// otherwise.
func (s *CommentService) List(user *models.User) ([]models.Comment, error) {
	isAdmin, err := s.Roles.Has(s.DB, user.ID, types.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if isAdmin {
		v, err := s.Cache.Remember(cache.AllCommentsKey(), cache.DefaultTTL, func() (interface{}, error) {
			var comments []models.Comment
			err := s.DB.Preload("Author").Find(&comments).Error
			return comments, err
		})
		if err != nil {
			return nil, err
		}
		return v.([]models.Comment), nil
	}

	var comments []models.Comment
	err = s.DB.Preload("Author").Where("author_id = ?", user.ID).Find(&comments).Error
	return comments, err
}

func (s *CommentService) Get(user *models.User, commentID uint) (*models.Comment, error) {
	comment, err := s.findComment(s.DB, commentID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanComment(s.DB, user, authz.ActionView, comment)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}
	return comment, nil
}

// Create posts a comment on a project or task and raises a
// CommentCreated event after commit. Comments on comments are not
// supported; the parent kind set here is project|task.
func (s *CommentService) Create(user *models.User, kind types.ParentKind, parentID uint, body string) (*models.Comment, error) {
	if kind != types.ParentProject && kind != types.ParentTask {
		return nil, apperrors.Newf(apperrors.KindNotFound, "cannot comment on a %s", kind)
	}

	comment := models.Comment{
		Body:       body,
		AuthorID:   user.ID,
		ParentKind: kind,
		ParentID:   parentID,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		decision, err := s.canCommentOnParent(tx, user, kind, parentID)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return apperrors.New(apperrors.KindForbidden, decision.Reason)
		}
		return tx.Create(&comment).Error
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.AllCommentsKey())
	s.Events.Dispatch(events.CommentCreated{
		CommentID:  comment.ID,
		ParentKind: kind,
		ParentID:   parentID,
	})
	return &comment, nil
}

// Update is restricted to the comment's author.
func (s *CommentService) Update(user *models.User, commentID uint, body string) (*models.Comment, error) {
	comment, err := s.findComment(s.DB, commentID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanComment(s.DB, user, authz.ActionUpdate, comment)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if err := s.DB.Model(comment).Update("body", body).Error; err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.AllCommentsKey())
	return comment, nil
}

func (s *CommentService) Delete(user *models.User, commentID uint) error {
	comment, err := s.findComment(s.DB, commentID)
	if err != nil {
		return err
	}

	decision, err := s.Authz.CanComment(s.DB, user, authz.ActionDelete, comment)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_kind = ? AND parent_id = ?", types.ParentComment, commentID).
			Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(comment).Error
	})
	if err != nil {
		return err
	}

	s.Cache.Forget(cache.AllCommentsKey())
	return nil
}

func (s *CommentService) canCommentOnParent(tx *gorm.DB, user *models.User, kind types.ParentKind, parentID uint) (authz.Decision, error) {
	switch kind {
	case types.ParentProject:
		var project models.Project
		if err := tx.First(&project, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authz.Decision{}, apperrors.New(apperrors.KindNotFound, "project not found")
			}
			return authz.Decision{}, err
		}
		return s.Authz.CanProject(tx, user, authz.ActionComment, &project)
	case types.ParentTask:
		var task models.Task
		if err := tx.First(&task, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authz.Decision{}, apperrors.New(apperrors.KindNotFound, "task not found")
			}
			return authz.Decision{}, err
		}
		return s.Authz.CanTask(tx, user, authz.ActionComment, &task)
	}
	return authz.Deny("unsupported comment parent"), nil
}

func (s *CommentService) findComment(tx *gorm.DB, commentID uint) (*models.Comment, error) {
	var comment models.Comment
	if err := tx.First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "comment not found")
		}
		return nil, err
	}
	return &comment, nil
}
