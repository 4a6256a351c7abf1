package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

func GetCurrentUser(ctx *gin.Context) (*models.User, error) {
	user, exists := ctx.Get(types.ContextUserKey)

	if !exists {
		return nil, fmt.Errorf("User not authenticated")
	}

	authenticatedUser, ok := user.(*models.User)

	if !ok {
		return nil, fmt.Errorf("Invalid user type in context")
	}

	return authenticatedUser, nil
}

func GetCurrentUserID(ctx *gin.Context) (uint, error) {
	user, err := GetCurrentUser(ctx)

	if err != nil {
		return 0, err
	}

	return user.ID, nil
}

// ParamID parses a numeric path parameter.
func ParamID(ctx *gin.Context, name string) (uint, error) {
	raw := ctx.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}
