package roles

import (
	"errors"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// Directory maintains the global role-label table. Labels are a
// denormalized cache over edge reality (teams owned, project edges
// held); every write goes through Grant, Revoke, or Reconcile so the
// cache stays honest. All methods accept the *gorm.DB of the enclosing
// transaction: a label write commits or rolls back with the edge write
// that caused it.
type Directory struct {
	DB *gorm.DB
}

func NewDirectory(conn *gorm.DB) *Directory {
	return &Directory{DB: conn}
}

// Has reports whether the user currently holds the label.
func (d *Directory) Has(tx *gorm.DB, userID uint, role types.Role) (bool, error) {
	var row models.UserRole
	err := tx.Where("user_id = ? AND role = ?", userID, role).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Grant adds the label if absent. Granting an already-held label is a
// no-op, not an error.
func (d *Directory) Grant(tx *gorm.DB, userID uint, role types.Role) error {
	held, err := d.Has(tx, userID, role)
	if err != nil {
		return err
	}
	if held {
		return nil
	}
	return tx.Create(&models.UserRole{UserID: userID, Role: role}).Error
}

// Revoke removes the label if present.
func (d *Directory) Revoke(tx *gorm.DB, userID uint, role types.Role) error {
	return tx.Unscoped().
		Where("user_id = ? AND role = ?", userID, role).
		Delete(&models.UserRole{}).Error
}

// Reconcile re-derives one label for one user from edge reality: the
// label is held iff the user holds the corresponding accountable or
// edge role on at least one entity. This is the single entry point for
// the "revoke only when held nowhere" rule; transfer and edge-removal
// paths call it instead of revoking directly.
func (d *Directory) Reconcile(tx *gorm.DB, userID uint, role types.Role) error {
	count, err := d.edgeCount(tx, userID, role)
	if err != nil {
		return err
	}
	if count > 0 {
		return d.Grant(tx, userID, role)
	}
	return d.Revoke(tx, userID, role)
}

func (d *Directory) edgeCount(tx *gorm.DB, userID uint, role types.Role) (int64, error) {
	var count int64

	switch role {
	case types.RoleTeamOwner:
		err := tx.Model(&models.Team{}).Where("owner_id = ?", userID).Count(&count).Error
		return count, err
	case types.RoleProjectManager:
		err := tx.Model(&models.ProjectWorker{}).
			Where("user_id = ? AND role = ?", userID, types.EdgeManager).
			Count(&count).Error
		return count, err
	case types.RoleMember:
		err := tx.Model(&models.ProjectWorker{}).Where("user_id = ?", userID).Count(&count).Error
		return count, err
	case types.RoleAdmin:
		// Admin is not derived from any edge; reconciliation leaves it
		// exactly as granted.
		var row models.UserRole
		err := tx.Where("user_id = ? AND role = ?", userID, types.RoleAdmin).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 1, err
	}

	return 0, nil
}

// RolesOf returns every label the user holds.
func (d *Directory) RolesOf(tx *gorm.DB, userID uint) ([]types.Role, error) {
	var rows []models.UserRole
	if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Role)
	}
	return out, nil
}
