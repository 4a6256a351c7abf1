package roles

import (
	"errors"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// RoleInProject returns the user's edge role within the project, or
// ok=false when no edge exists. Single indexed lookup; the authorization
// evaluator leans on it everywhere.
func RoleInProject(tx *gorm.DB, userID, projectID uint) (types.Role, bool, error) {
	var edge models.ProjectWorker
	err := tx.Where("user_id = ? AND project_id = ?", userID, projectID).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return edge.Role, true, nil
}

// ManagerOf returns the user id holding the manager edge of the
// project, or ok=false for a project with no workers.
func ManagerOf(tx *gorm.DB, projectID uint) (uint, bool, error) {
	var edge models.ProjectWorker
	err := tx.Where("project_id = ? AND role = ?", projectID, types.EdgeManager).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return edge.UserID, true, nil
}

// IsTeamMember reports whether the user has a membership edge on the
// team.
func IsTeamMember(tx *gorm.DB, userID, teamID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.TeamMembership{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&count).Error
	return count > 0, err
}
