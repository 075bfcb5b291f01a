package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/biogen/pkg/docstore"
	"github.com/dmitrymomot/biogen/pkg/identity"
	"github.com/dmitrymomot/biogen/svc/admin"
	"github.com/dmitrymomot/biogen/svc/billing"
	"github.com/dmitrymomot/biogen/svc/entitlement"
)

type fakeDirectory struct {
	users    map[string]identity.User
	disabled map[string]bool
}

func (d *fakeDirectory) ListUsers(ctx context.Context, limit int) ([]identity.User, error) {
	out := make([]identity.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out, nil
}

func (d *fakeDirectory) GetUser(ctx context.Context, uid string) (identity.User, error) {
	u, ok := d.users[uid]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	u, ok := d.users[uid]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Disabled = disabled
	d.users[uid] = u
	return nil
}

func newAdminService(t *testing.T, emails []string) (*admin.Service, *fakeDirectory, *docstore.MemoryStore) {
	t.Helper()

	docs := docstore.NewMemoryStore()
	dir := &fakeDirectory{users: map[string]identity.User{}}
	svc := admin.NewService(
		admin.Config{AdminEmails: emails},
		dir,
		entitlement.NewStore(docs, nil),
		billing.NewFailureLog(docs, nil),
		nil,
	)
	return svc, dir, docs
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAdminService(t, []string{"ops@example.com", " Admin@Example.com "})

	assert.NoError(t, svc.Authorize("ops@example.com"))
	assert.NoError(t, svc.Authorize("admin@example.com"), "allow-list comparison is case-insensitive")
	assert.ErrorIs(t, svc.Authorize("user@example.com"), admin.ErrNotAdmin)
	assert.ErrorIs(t, svc.Authorize(""), admin.ErrNotAdmin)
}

func TestAuthorizeEmptyListDeniesEveryone(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAdminService(t, nil)
	assert.ErrorIs(t, svc.Authorize("ops@example.com"), admin.ErrNotAdmin)
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	svc, dir, docs := newAdminService(t, []string{"ops@example.com"})
	ctx := context.Background()

	now := time.Now().UTC()
	dir.users["u1"] = identity.User{UID: "u1", CreatedAt: now}
	dir.users["u2"] = identity.User{UID: "u2", CreatedAt: now.AddDate(0, 0, -2)}
	dir.users["u3"] = identity.User{UID: "u3", CreatedAt: now.AddDate(0, 0, -30)}

	require.NoError(t, docs.Set(ctx, "entitlements/u1", map[string]any{"isPro": true}, true))
	require.NoError(t, docs.Set(ctx, "entitlements/u2", map[string]any{"isPro": false}, true))

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.UserCount)
	assert.Equal(t, int64(1), stats.ProCount)
	require.Len(t, stats.SignupChart, 7)

	total := 0
	for _, p := range stats.SignupChart {
		total += p.Count
	}
	assert.Equal(t, 2, total, "only signups inside the 7-day window are charted")
}

func TestListUsersJoinsEntitlement(t *testing.T) {
	t.Parallel()

	svc, dir, docs := newAdminService(t, []string{"ops@example.com"})
	ctx := context.Background()

	dir.users["u1"] = identity.User{UID: "u1", Email: "a@example.com"}
	dir.users["u2"] = identity.User{UID: "u2", Email: "b@example.com"}
	require.NoError(t, docs.Set(ctx, "entitlements/u1", map[string]any{"isPro": true}, true))

	rows, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byUID := map[string]bool{}
	for _, r := range rows {
		byUID[r.UID] = r.IsPro
	}
	assert.True(t, byUID["u1"])
	assert.False(t, byUID["u2"])
}

func TestTogglePro(t *testing.T) {
	t.Parallel()

	svc, dir, docs := newAdminService(t, []string{"ops@example.com"})
	ctx := context.Background()
	dir.users["u1"] = identity.User{UID: "u1"}

	on, err := svc.TogglePro(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, on)

	var status entitlement.Status
	require.NoError(t, docs.Get(ctx, "entitlements/u1", &status))
	assert.True(t, status.IsPro)
	assert.NotNil(t, status.AdminModifiedAt)

	off, err := svc.TogglePro(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, off)
}

func TestToggleDisableUser(t *testing.T) {
	t.Parallel()

	svc, dir, _ := newAdminService(t, []string{"ops@example.com"})
	ctx := context.Background()
	dir.users["u1"] = identity.User{UID: "u1"}

	disabled, err := svc.ToggleDisableUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, disabled)
	assert.True(t, dir.users["u1"].Disabled)

	_, err = svc.ToggleDisableUser(ctx, "missing")
	assert.True(t, errors.Is(err, identity.ErrUserNotFound))
}

func TestGetUserDetails(t *testing.T) {
	t.Parallel()

	svc, dir, docs := newAdminService(t, []string{"ops@example.com"})
	ctx := context.Background()
	dir.users["u1"] = identity.User{UID: "u1", Email: "a@example.com"}

	details, err := svc.GetUserDetails(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", details.User.Email)
	assert.Nil(t, details.Status, "users without a status document report none")

	require.NoError(t, docs.Set(ctx, "entitlements/u1", map[string]any{"isPro": true}, true))
	details, err = svc.GetUserDetails(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, details.Status)
	assert.True(t, details.Status.IsPro)
}
