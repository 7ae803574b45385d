package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/model"
	"focusflow/backend/internal/repository"
	"focusflow/backend/internal/service"
)

type linkFixture struct {
	*engineFixture
	tasks *repository.TaskRepository
	links *service.TaskLinkService
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	engine := newEngineFixture(t)
	tasks := repository.NewTaskRepository(engine.db)
	return &linkFixture{
		engineFixture: engine,
		tasks:         tasks,
		links:         service.NewTaskLinkService(engine.repo, tasks),
	}
}

func (f *linkFixture) createTask(t *testing.T, ownerID string) string {
	t.Helper()
	now := time.Now().UTC()
	taskID := uuid.NewString()
	require.NoError(t, f.tasks.Insert(context.Background(), &model.Task{
		ID:        taskID,
		OwnerID:   ownerID,
		Title:     "write report",
		CreatedAt: now,
		UpdatedAt: now,
	}))
	return taskID
}

func TestLinkSetsForwardAndReverseRefs(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)

	linked, apiErr := f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)
	require.NotNil(t, linked.LinkedTaskID)
	assert.Equal(t, taskID, *linked.LinkedTaskID)

	refs, err := f.tasks.SessionRefs(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, []string{sess.ID}, refs)
}

func TestLinkSameTaskTwiceIsIdempotent(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)
	again, apiErr := f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)
	require.NotNil(t, again.LinkedTaskID)
	assert.Equal(t, taskID, *again.LinkedTaskID)

	refs, err := f.tasks.SessionRefs(ctx, taskID)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestLinkToDifferentTaskMovesReverseRef(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	first := f.createTask(t, owner)
	second := f.createTask(t, owner)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, first)
	require.Nil(t, apiErr)
	moved, apiErr := f.links.Link(ctx, owner, sess.ID, second)
	require.Nil(t, apiErr)
	require.NotNil(t, moved.LinkedTaskID)
	assert.Equal(t, second, *moved.LinkedTaskID)

	firstRefs, err := f.tasks.SessionRefs(ctx, first)
	require.NoError(t, err)
	assert.Empty(t, firstRefs)

	secondRefs, err := f.tasks.SessionRefs(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{sess.ID}, secondRefs)
}

func TestLinkRejectsMissingTask(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, "no-such-task")
	require.NotNil(t, apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "task_not_found", apiErr.Code)
}

func TestLinkRejectsForeignSession(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	other := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, other)

	_, apiErr = f.links.Link(ctx, other, sess.ID, taskID)
	require.NotNil(t, apiErr)
	assert.Equal(t, 403, apiErr.Status)
}

func TestUnlinkClearsBothSides(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)

	unlinked, apiErr := f.links.Unlink(ctx, owner, sess.ID)
	require.Nil(t, apiErr)
	assert.Nil(t, unlinked.LinkedTaskID)

	refs, err := f.tasks.SessionRefs(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, refs)

	// Unlinking an unlinked session succeeds as a no-op.
	again, apiErr := f.links.Unlink(ctx, owner, sess.ID)
	require.Nil(t, apiErr)
	assert.Nil(t, again.LinkedTaskID)
}

func TestFailedLinkLeavesSessionUnchanged(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)

	// Break the reverse-ref table so the second write inside the
	// transaction fails.
	_, err := f.db.Exec(`ALTER TABLE task_sessions RENAME TO task_sessions_broken`)
	require.NoError(t, err)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, taskID)
	require.NotNil(t, apiErr)
	assert.Equal(t, 500, apiErr.Status)

	// The forward link rolled back with the failed ref write.
	loaded, err := f.repo.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.LinkedTaskID)

	// A retry after the fault clears succeeds normally.
	_, err = f.db.Exec(`ALTER TABLE task_sessions_broken RENAME TO task_sessions`)
	require.NoError(t, err)
	linked, apiErr := f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)
	require.NotNil(t, linked.LinkedTaskID)
	assert.Equal(t, taskID, *linked.LinkedTaskID)
}

func TestFailedUnlinkLeavesSessionLinked(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)
	_, apiErr = f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)

	_, err := f.db.Exec(`ALTER TABLE task_sessions RENAME TO task_sessions_broken`)
	require.NoError(t, err)

	_, apiErr = f.links.Unlink(ctx, owner, sess.ID)
	require.NotNil(t, apiErr)
	assert.Equal(t, 500, apiErr.Status)

	// The forward link survives, so a retry can still repair both
	// sides instead of hitting the already-unlinked no-op.
	loaded, err := f.repo.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.LinkedTaskID)
	assert.Equal(t, taskID, *loaded.LinkedTaskID)

	_, err = f.db.Exec(`ALTER TABLE task_sessions_broken RENAME TO task_sessions`)
	require.NoError(t, err)
	unlinked, apiErr := f.links.Unlink(ctx, owner, sess.ID)
	require.Nil(t, apiErr)
	assert.Nil(t, unlinked.LinkedTaskID)

	refs, err := f.tasks.SessionRefs(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDeleteLinkedSessionDropsReverseRefs(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)

	require.Nil(t, f.svc.Delete(ctx, owner, sess.ID))

	refs, err := f.tasks.SessionRefs(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLinkSurvivesTimerCommands(t *testing.T) {
	f := newLinkFixture(t)
	owner := f.createUser(t)
	ctx := context.Background()

	sess, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	taskID := f.createTask(t, owner)

	_, apiErr = f.links.Link(ctx, owner, sess.ID, taskID)
	require.Nil(t, apiErr)

	_, apiErr = f.svc.Start(ctx, owner, sess.ID)
	require.Nil(t, apiErr)
	_, apiErr = f.svc.Pause(ctx, owner, sess.ID)
	require.Nil(t, apiErr)
	stopped, apiErr := f.svc.Stop(ctx, owner, sess.ID)
	require.Nil(t, apiErr)

	require.NotNil(t, stopped.LinkedTaskID)
	assert.Equal(t, taskID, *stopped.LinkedTaskID)
}
