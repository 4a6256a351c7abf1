package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

type NotificationService struct {
	DB    *gorm.DB
	Roles *roles.Directory
	Authz *authz.Evaluator
}

func NewNotificationService(conn *gorm.DB, dir *roles.Directory, eval *authz.Evaluator) *NotificationService {
	return &NotificationService{DB: conn, Roles: dir, Authz: eval}
}

// List returns the caller's notifications, newest first. Admins see
// all.
func (s *NotificationService) List(user *models.User) ([]models.Notification, error) {
	isAdmin, err := s.Roles.Has(s.DB, user.ID, types.RoleAdmin)
	if err != nil {
		return nil, err
	}

	query := s.DB.Order("created_at DESC")
	if !isAdmin {
		query = query.Where("user_id = ?", user.ID)
	}

	var notifications []models.Notification
	err = query.Find(&notifications).Error
	return notifications, err
}

func (s *NotificationService) Get(user *models.User, notificationID uint) (*models.Notification, error) {
	notification, err := s.findNotification(notificationID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanNotification(s.DB, user, authz.ActionView, notification)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}
	return notification, nil
}

// MarkRead stamps ReadAt. Re-marking an already-read notification is a
// no-op.
func (s *NotificationService) MarkRead(user *models.User, notificationID uint) (*models.Notification, error) {
	notification, err := s.findNotification(notificationID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanNotification(s.DB, user, authz.ActionMarkRead, notification)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if notification.ReadAt != nil {
		return notification, nil
	}

	now := time.Now()
	if err := s.DB.Model(notification).Update("read_at", &now).Error; err != nil {
		return nil, err
	}
	notification.ReadAt = &now
	return notification, nil
}

func (s *NotificationService) Delete(user *models.User, notificationID uint) error {
	notification, err := s.findNotification(notificationID)
	if err != nil {
		return err
	}

	decision, err := s.Authz.CanNotification(s.DB, user, authz.ActionDelete, notification)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	return s.DB.Delete(notification).Error
}

func (s *NotificationService) findNotification(notificationID uint) (*models.Notification, error) {
	var notification models.Notification
	if err := s.DB.First(&notification, notificationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "notification not found")
		}
		return nil, err
	}
	return &notification, nil
}
