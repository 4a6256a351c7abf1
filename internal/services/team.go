package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// TeamService owns the team half of the membership graph: member
// edges, the single accountable owner slot, and the ownership transfer
// state machine. Every mutation runs edge writes and label
// reconciliation in one transaction.
type TeamService struct {
	DB    *gorm.DB
	Roles *roles.Directory
	Authz *authz.Evaluator
	Cache cache.Store
}

func NewTeamService(conn *gorm.DB, dir *roles.Directory, eval *authz.Evaluator, store cache.Store) *TeamService {
	return &TeamService{DB: conn, Roles: dir, Authz: eval, Cache: store}
}

// List returns all teams for admins and owned teams for team owners.
func (s *TeamService) List(user *models.User) ([]models.Team, error) {
	isAdmin, err := s.Roles.Has(s.DB, user.ID, types.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if isAdmin {
		v, err := s.Cache.Remember(cache.AllTeamsKey(), cache.DefaultTTL, func() (interface{}, error) {
			var teams []models.Team
			err := s.DB.Preload("Owner").Preload("Memberships").Find(&teams).Error
			return teams, err
		})
		if err != nil {
			return nil, err
		}
		return v.([]models.Team), nil
	}

	isOwner, err := s.Roles.Has(s.DB, user.ID, types.RoleTeamOwner)
	if err != nil {
		return nil, err
	}
	if !isOwner {
		return nil, apperrors.New(apperrors.KindForbidden, "you do not have the permissions to list teams")
	}

	v, err := s.Cache.Remember(cache.OwnerTeamsKey(user.ID), cache.DefaultTTL, func() (interface{}, error) {
		var teams []models.Team
		err := s.DB.Preload("Owner").Preload("Memberships").
			Where("owner_id = ?", user.ID).Find(&teams).Error
		return teams, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Team), nil
}

// Get loads one team with its edges after an authorization check.
func (s *TeamService) Get(user *models.User, teamID uint) (*models.Team, error) {
	team, err := s.findTeam(s.DB, teamID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanTeam(s.DB, user, authz.ActionView, team)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if err := s.DB.Preload("Owner").Preload("Memberships.User").Preload("Projects").
		First(team, teamID).Error; err != nil {
		return nil, err
	}
	return team, nil
}

// Create makes the caller the owner. The owner always holds a member
// edge: a team without its owner in the membership set would violate
// the owner-is-a-member invariant.
func (s *TeamService) Create(user *models.User, name string, memberIDs []uint) (*models.Team, error) {
	team := models.Team{Name: name, OwnerID: user.ID}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		if err := s.attachMembers(tx, team.ID, append([]uint{user.ID}, memberIDs...)); err != nil {
			return err
		}
		return s.Roles.Grant(tx, user.ID, types.RoleTeamOwner)
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.OwnerTeamsKey(user.ID))
	s.Cache.Forget(cache.AllTeamsKey())
	return &team, nil
}

// Update renames the team and optionally transfers ownership when the
// request carries a different owner id.
func (s *TeamService) Update(user *models.User, teamID uint, name string, newOwnerID uint) (*models.Team, error) {
	team, err := s.findTeam(s.DB, teamID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanTeam(s.DB, user, authz.ActionUpdate, team)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	if newOwnerID != 0 && newOwnerID != team.OwnerID {
		if team, err = s.TransferOwnership(user, teamID, newOwnerID); err != nil {
			return nil, err
		}
	}

	if name != "" {
		if err := s.DB.Model(team).Update("name", name).Error; err != nil {
			return nil, err
		}
	}

	s.Cache.Forget(cache.OwnerTeamsKey(team.OwnerID))
	s.Cache.Forget(cache.OwnerTeamsKey(user.ID))
	s.Cache.Forget(cache.AllTeamsKey())
	return team, nil
}

// Delete removes the team and everything it owns, then reconciles the
// former owner's label since one of their owner edges just vanished.
func (s *TeamService) Delete(user *models.User, teamID uint) error {
	team, err := s.findTeam(s.DB, teamID)
	if err != nil {
		return err
	}

	decision, err := s.Authz.CanTeam(s.DB, user, authz.ActionDelete, team)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	ownerID := team.OwnerID

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("team_id = ?", teamID).Delete(&models.TeamMembership{}).Error; err != nil {
			return err
		}
		var projects []models.Project
		if err := tx.Where("team_id = ?", teamID).Find(&projects).Error; err != nil {
			return err
		}
		for _, project := range projects {
			if err := deleteProjectTree(tx, s.Roles, &project); err != nil {
				return err
			}
		}
		if err := tx.Delete(team).Error; err != nil {
			return err
		}
		return s.Roles.Reconcile(tx, ownerID, types.RoleTeamOwner)
	})
	if err != nil {
		return err
	}

	s.Cache.Forget(cache.OwnerTeamsKey(ownerID))
	s.Cache.Forget(cache.AllTeamsKey())
	s.Cache.Forget(cache.AllProjectsKey())
	return nil
}

// AddMembers attaches membership edges, skipping ones that already
// exist.
func (s *TeamService) AddMembers(user *models.User, teamID uint, memberIDs []uint) (*models.Team, error) {
	team, err := s.findTeam(s.DB, teamID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanTeam(s.DB, user, authz.ActionAddMember, team)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return s.attachMembers(tx, teamID, memberIDs)
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.OwnerTeamsKey(team.OwnerID))
	s.Cache.Forget(cache.AllTeamsKey())
	return team, nil
}

// RemoveMembers detaches membership edges. Removing the current owner
// is an invariant violation: the owner slot must always point at a
// member.
func (s *TeamService) RemoveMembers(user *models.User, teamID uint, memberIDs []uint) (*models.Team, error) {
	team, err := s.findTeam(s.DB, teamID)
	if err != nil {
		return nil, err
	}

	decision, err := s.Authz.CanTeam(s.DB, user, authz.ActionRemoveMember, team)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.New(apperrors.KindForbidden, decision.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		current, err := s.findTeam(tx, teamID)
		if err != nil {
			return err
		}
		for _, id := range memberIDs {
			if id == current.OwnerID {
				return apperrors.New(apperrors.KindInvariantViolation, "you can not remove the team owner")
			}
		}
		return tx.Unscoped().
			Where("team_id = ? AND user_id IN ?", teamID, memberIDs).
			Delete(&models.TeamMembership{}).Error
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.OwnerTeamsKey(team.OwnerID))
	s.Cache.Forget(cache.AllTeamsKey())
	return team, nil
}

// TransferOwnership moves the accountable owner slot to another member.
// Preconditions are re-checked inside the transaction; any violation
// aborts before mutation. After the slot moves, the new owner gains the
// team_owner label and the previous owner keeps it only while they own
// at least one other team.
func (s *TeamService) TransferOwnership(user *models.User, teamID uint, newOwnerID uint) (*models.Team, error) {
	var team *models.Team
	var previousOwnerID uint

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		team, err = s.findTeam(tx, teamID)
		if err != nil {
			return err
		}

		decision, err := s.Authz.CanTeam(tx, user, authz.ActionChangeOwner, team)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return apperrors.New(apperrors.KindForbidden, decision.Reason)
		}

		isMember, err := roles.IsTeamMember(tx, newOwnerID, teamID)
		if err != nil {
			return err
		}
		if !isMember {
			return apperrors.New(apperrors.KindNotEligible, "the new owner is not on the team")
		}

		previousOwnerID = team.OwnerID
		if newOwnerID == previousOwnerID {
			return apperrors.New(apperrors.KindNoOpTransfer, "the user already owns this team")
		}

		if err := tx.Model(team).Update("owner_id", newOwnerID).Error; err != nil {
			return err
		}
		team.OwnerID = newOwnerID

		if err := s.Roles.Grant(tx, newOwnerID, types.RoleTeamOwner); err != nil {
			return err
		}
		return s.Roles.Reconcile(tx, previousOwnerID, types.RoleTeamOwner)
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Forget(cache.OwnerTeamsKey(newOwnerID))
	s.Cache.Forget(cache.OwnerTeamsKey(previousOwnerID))
	s.Cache.Forget(cache.OwnerTeamsKey(user.ID))
	s.Cache.Forget(cache.AllTeamsKey())
	return team, nil
}

func (s *TeamService) attachMembers(tx *gorm.DB, teamID uint, memberIDs []uint) error {
	for _, id := range memberIDs {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Newf(apperrors.KindNotFound, "user %d not found", id)
			}
			return err
		}

		var existing models.TeamMembership
		err := tx.Where("team_id = ? AND user_id = ?", teamID, id).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(&models.TeamMembership{TeamID: teamID, UserID: id}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *TeamService) findTeam(tx *gorm.DB, teamID uint) (*models.Team, error) {
	var team models.Team
	if err := tx.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "team not found")
		}
		return nil, err
	}
	return &team, nil
}
