package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/storage"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

func newAttachmentService(t *testing.T, env *testEnv) *AttachmentService {
	t.Helper()
	blobs, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	return NewAttachmentService(env.DB, authz.NewEvaluator(env.Roles), blobs)
}

func TestUploadAttachmentToProject(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	svc := newAttachmentService(t, env)

	attachment, err := svc.Upload(fx.Worker, UploadInput{
		ParentKind: types.ParentProject,
		ParentID:   fx.Project.ID,
		FileName:   "notes.txt",
		MimeType:   "text/plain",
		Data:       []byte("release checklist"),
	})
	require.NoError(t, err)

	assert.Equal(t, fx.Worker.ID, attachment.UploaderID)
	assert.EqualValues(t, len("release checklist"), attachment.FileSize)
	assert.True(t, svc.Blobs.Exists(attachment.Path), "bytes must land in the blob store")
}

func TestUploadAttachmentByOutsiderForbidden(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	svc := newAttachmentService(t, env)
	outsider := env.createUser(t, "outsider")

	_, err := svc.Upload(outsider, UploadInput{
		ParentKind: types.ParentProject,
		ParentID:   fx.Project.ID,
		FileName:   "notes.txt",
		Data:       []byte("x"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestDeleteAttachmentRemovesBlob(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	svc := newAttachmentService(t, env)

	attachment, err := svc.Upload(fx.Worker, UploadInput{
		ParentKind: types.ParentProject,
		ParentID:   fx.Project.ID,
		FileName:   "notes.txt",
		Data:       []byte("x"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(fx.Manager, attachment.ID))
	assert.False(t, svc.Blobs.Exists(attachment.Path))

	_, err = svc.Get(fx.Worker, attachment.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestAttachmentOnCommentFollowsCommentRules(t *testing.T) {
	env := newTestEnv(t)
	fx := newProjectFixture(t, env)
	svc := newAttachmentService(t, env)

	comment, err := env.Comments.Create(fx.Worker, types.ParentProject, fx.Project.ID, "see attached")
	require.NoError(t, err)

	_, err = svc.Upload(fx.Worker, UploadInput{
		ParentKind: types.ParentComment,
		ParentID:   comment.ID,
		FileName:   "notes.txt",
		Data:       []byte("x"),
	})
	assert.NoError(t, err, "the author attaches to their own comment")

	_, err = svc.Upload(fx.Manager, UploadInput{
		ParentKind: types.ParentComment,
		ParentID:   comment.ID,
		FileName:   "notes.txt",
		Data:       []byte("x"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden),
		"only admin or the author attaches to a comment")
}
