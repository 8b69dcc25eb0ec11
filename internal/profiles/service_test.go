package profiles

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/repository"
)

const adminID int64 = 1000

type fakeGenerator struct {
	out string
	err error
	got string
}

func (f *fakeGenerator) GenerateTemplate(_ context.Context, example string) (string, error) {
	f.got = example
	return f.out, f.err
}

type fixture struct {
	svc   *Service
	users repository.UserRepository
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.Config{DSN: "sqlite:" + filepath.Join(t.TempDir(), "p.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })

	f := &fixture{users: repository.NewUserRepository(db, nil), now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewService(f.users, common.AdminConfig{IDs: []int64{adminID}}, nil, opts...)
	return f
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, 5, "  bob ")
	require.NoError(t, err)
	assert.Equal(t, 2, u.FreeUses)
	assert.Equal(t, "bob", u.Username)

	_, err = f.svc.Register(ctx, 0, "x")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authorize(ctx, 5)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	u, err := f.svc.Authorize(ctx, adminID)
	require.NoError(t, err, "admins pass without an account")
	assert.Nil(t, u)

	_, err = f.svc.Register(ctx, 5, "")
	require.NoError(t, err)
	_, err = f.svc.Authorize(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, f.svc.ConsumeUse(ctx, 5))
	require.NoError(t, f.svc.ConsumeUse(ctx, 5))
	_, err = f.svc.Authorize(ctx, 5)
	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
	assert.Equal(t, "QUOTA_EXCEEDED", common.ErrorCode(err))
}

func TestAuthorize_ProBypassesQuotaAndExpires(t *testing.T) {
	f := newFixture(t, WithFreeUses(0))
	ctx := context.Background()
	_, err := f.svc.Register(ctx, 5, "")
	require.NoError(t, err)

	expiry, err := f.svc.GrantPro(ctx, 5, 30)
	require.NoError(t, err)
	assert.Equal(t, f.now.AddDate(0, 0, 30), expiry)

	_, err = f.svc.Authorize(ctx, 5)
	require.NoError(t, err)

	f.now = f.now.AddDate(0, 0, 31)
	_, err = f.svc.Authorize(ctx, 5)
	assert.ErrorIs(t, err, common.ErrQuotaExceeded)

	u, err := f.users.GetByTelegramID(ctx, 5)
	require.NoError(t, err)
	assert.False(t, u.IsPro, "lapsed subscription is downgraded")
}

func TestConsumeUse_SkipsAdminAndPro(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []int64{adminID, 5} {
		_, err := f.svc.Register(ctx, id, "")
		require.NoError(t, err)
	}
	_, err := f.svc.GrantPro(ctx, 5, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.ConsumeUse(ctx, adminID))
	require.NoError(t, f.svc.ConsumeUse(ctx, 5))

	for _, id := range []int64{adminID, 5} {
		u, err := f.users.GetByTelegramID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, u.FreeUses)
	}
}

func TestSetTemplate(t *testing.T) {
	ctx := context.Background()
	example := "Broker: Ryan\nLoad 123\nRate $1,500.00"
	good := "Broker: {{ broker }}\nLoad {{ load_number }}\nRate {{ rate }}"

	tests := []struct {
		name string
		gen  *fakeGenerator
		want string
	}{
		{name: "ai converts", gen: &fakeGenerator{out: good}, want: good},
		{name: "ai fails", gen: &fakeGenerator{err: errors.New("timeout")}, want: example},
		{name: "ai returns broken syntax", gen: &fakeGenerator{out: "{% for p in pickups %}"}, want: example},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithTemplateGenerator(tt.gen))
			_, err := f.svc.Register(ctx, 5, "")
			require.NoError(t, err)

			got, err := f.svc.SetTemplate(ctx, 5, example)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, example, tt.gen.got)

			stored, err := f.svc.Template(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored)
		})
	}
}

func TestSetTemplate_WithoutAIAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, 5, "")
	require.NoError(t, err)

	_, err = f.svc.SetTemplate(ctx, 5, "   ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.SetTemplate(ctx, 5, "{{ broker")
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err := f.svc.SetTemplate(ctx, 5, "<b>{{ broker }}</b>")
	require.NoError(t, err)
	assert.Equal(t, "<b>{{ broker }}</b>", got)

	require.NoError(t, f.svc.ResetTemplate(ctx, 5))
	stored, err := f.svc.Template(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, stored)

	stored, err = f.svc.Template(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, stored)

	assert.ErrorIs(t, f.svc.ResetTemplate(ctx, 404), common.ErrNotFound)
}

func TestGrantPro_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantPro(ctx, 5, 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.svc.GrantPro(ctx, 5, 10)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, 5, "")
	require.NoError(t, err)

	st, err := f.svc.Status(ctx, 5)
	require.NoError(t, err)
	assert.False(t, st.IsPro)
	assert.Equal(t, "🆓 Free (2 left)", st.Text())

	_, err = f.svc.GrantPro(ctx, 5, 10)
	require.NoError(t, err)
	st, err = f.svc.Status(ctx, 5)
	require.NoError(t, err)
	assert.True(t, st.IsPro)
	assert.Equal(t, "✅ Pro (until 11.03.2026)", st.Text())

	_, err = f.svc.Status(ctx, 404)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
