package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, ok := RunID(ctx)
	assert.False(t, ok)
	_, ok = Roles(WithRoles(ctx, nil))
	assert.False(t, ok, "empty roles count as absent")
	_, ok = UserID(WithUserID(ctx, ""))
	assert.False(t, ok, "empty user counts as absent")

	ctx = WithRoles(WithRunID(WithUserID(ctx, "alice"), "run-1"), []string{"operator"})

	user, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	run, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", run)

	roles, ok := Roles(ctx)
	assert.True(t, ok)
	assert.Equal(t, []string{"operator"}, roles)
}

func TestContextKeysDoNotCollide(t *testing.T) {
	t.Parallel()
	type legacyKey string
	ctx := context.WithValue(context.Background(), legacyKey("run_id"), "run-1")
	_, ok := RunID(ctx)
	assert.False(t, ok)
}
