package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/storage"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

type AttachmentService struct {
	DB    *gorm.DB
	Authz *authz.Evaluator
	Blobs storage.BlobStore
}

func NewAttachmentService(conn *gorm.DB, eval *authz.Evaluator, blobs storage.BlobStore) *AttachmentService {
	return &AttachmentService{DB: conn, Authz: eval, Blobs: blobs}
}

type UploadInput struct {
	ParentKind types.ParentKind
	ParentID   uint
	FileName   string
	MimeType   string
	Data       []byte
}

// Upload stores the bytes in the blob store and records metadata. The
// blob write happens before the row insert; a failed insert leaves an
// orphan blob, which is preferable to a row pointing at nothing.
func (s *AttachmentService) Upload(user *models.User, input UploadInput) (*models.Attachment, error) {
	decision, err := s.canAttach(user, input.ParentKind, input.ParentID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	hint := fmt.Sprintf("files_%s_%d", input.ParentKind, input.ParentID)
	path, err := s.Blobs.Store(input.Data, hint)
	if err != nil {
		return nil, err
	}

	attachment := models.Attachment{
		ParentKind: input.ParentKind,
		ParentID:   input.ParentID,
		UploaderID: user.ID,
		Path:       path,
		FileName:   input.FileName,
		FileSize:   int64(len(input.Data)),
		MimeType:   input.MimeType,
	}
	if err := s.DB.Create(&attachment).Error; err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (s *AttachmentService) Get(user *models.User, attachmentID uint) (*models.Attachment, error) {
	attachment, err := s.findAttachment(attachmentID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanAttachment(s.DB, user, authz.ActionView, attachment)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}
	return attachment, nil
}

// List returns the caller's uploads; admins get everything through the
// evaluator on individual rows, so the listing stays simple here.
func (s *AttachmentService) List(user *models.User) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := s.DB.Where("uploader_id = ?", user.ID).Find(&attachments).Error
	return attachments, err
}

func (s *AttachmentService) Rename(user *models.User, attachmentID uint, fileName string) (*models.Attachment, error) {
	attachment, err := s.findAttachment(attachmentID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanAttachment(s.DB, user, authz.ActionUpdate, attachment)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if err := s.DB.Model(attachment).Update("file_name", fileName).Error; err != nil {
		return nil, err
	}
	return attachment, nil
}

func (s *AttachmentService) Delete(user *models.User, attachmentID uint) error {
	attachment, err := s.findAttachment(attachmentID)
	if err != nil {
		return err
	}

	decision, err := s.Authz.CanAttachment(s.DB, user, authz.ActionDelete, attachment)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if err := s.DB.Delete(attachment).Error; err != nil {
		return err
	}
	return s.Blobs.Delete(attachment.Path)
}

func (s *AttachmentService) canAttach(user *models.User, kind types.ParentKind, parentID uint) (authz.Decision, error) {
	switch kind {
	case types.ParentProject:
		var project models.Project
		if err := s.DB.First(&project, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authz.Decision{}, apperrors.New(apperrors.KindNotFound, "project not found")
			}
			return authz.Decision{}, err
		}
		return s.Authz.CanProject(s.DB, user, authz.ActionAttach, &project)
	case types.ParentTask:
		var task models.Task
		if err := s.DB.First(&task, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authz.Decision{}, apperrors.New(apperrors.KindNotFound, "task not found")
			}
			return authz.Decision{}, err
		}
		return s.Authz.CanTask(s.DB, user, authz.ActionAttach, &task)
	case types.ParentComment:
		var comment models.Comment
		if err := s.DB.First(&comment, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authz.Decision{}, apperrors.New(apperrors.KindNotFound, "comment not found")
			}
			return authz.Decision{}, err
		}
		return s.Authz.CanComment(s.DB, user, authz.ActionAttach, &comment)
	}
	return authz.Deny(fmt.Sprintf("cannot attach to a %s", kind)), nil
}

func (s *AttachmentService) findAttachment(attachmentID uint) (*models.Attachment, error) {
	var attachment models.Attachment
	if err := s.DB.First(&attachment, attachmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "attachment not found")
		}
		return nil, err
	}
	return &attachment, nil
}
