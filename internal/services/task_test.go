package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
)

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)

	task, err := env.Tasks.Create(fx.Manager, TaskInput{
		Name:       "ship it",
		ProjectID:  fx.Project.ID,
		AssigneeID: fx.Worker.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "pending", task.Status)
	assert.Equal(t, "medium", task.Priority)
	assert.Equal(t, fx.Worker.ID, task.AssigneeID)
}

func TestCreateTaskByNonManagerForbidden(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)

	_, err := env.Tasks.Create(fx.Worker, TaskInput{
		Name:       "ship it",
		ProjectID:  fx.Project.ID,
		AssigneeID: fx.Worker.ID,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestCreateTaskForNonWorker(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	outsider := env.createUser(t, "outsider")

	_, err := env.Tasks.Create(fx.Manager, TaskInput{
		Name:       "ship it",
		ProjectID:  fx.Project.ID,
		AssigneeID: outsider.ID,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotEligible))
}

func TestAssignTask(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	other := env.createUser(t, "other")

	_, err := env.Projects.AddWorkers(fx.Owner, fx.Project.ID, []uint{other.ID})
	require.NoError(t, err)

	task, err := env.Tasks.Create(fx.Manager, TaskInput{
		Name:       "ship it",
		ProjectID:  fx.Project.ID,
		AssigneeID: fx.Worker.ID,
	})
	require.NoError(t, err)

	got, err := env.Tasks.Assign(fx.Manager, task.ID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.AssigneeID)
}

func TestAssignTaskToNonWorker(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	outsider := env.createUser(t, "outsider")

	task, err := env.Tasks.Create(fx.Manager, TaskInput{
		Name:       "ship it",
		ProjectID:  fx.Project.ID,
		AssigneeID: fx.Worker.ID,
	})
	require.NoError(t, err)

	_, err = env.Tasks.Assign(fx.Manager, task.ID, outsider.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotEligible))
}

func TestGetTaskScopedToManagerAndAssignee(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	other := env.createUser(t, "other")

	_, err := env.Projects.AddWorkers(fx.Owner, fx.Project.ID, []uint{other.ID})
	require.NoError(t, err)

	task, err := env.Tasks.Create(fx.Manager, TaskInput{
		Name:       "ship it",
		ProjectID:  fx.Project.ID,
		AssigneeID: fx.Worker.ID,
	})
	require.NoError(t, err)

	_, err = env.Tasks.Get(fx.Manager, task.ID)
	assert.NoError(t, err)

	_, err = env.Tasks.Get(fx.Worker, task.ID)
	assert.NoError(t, err)

	_, err = env.Tasks.Get(other, task.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden),
		"a worker who is neither manager nor assignee can not view the task")
}

func TestGetTaskUnknown(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)

	_, err := env.Tasks.Get(fx.Manager, 9999)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
