package service

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/auth"
	"devcamper-api/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newResources(t *testing.T) (*ResourceService, *store.Memory) {
	t.Helper()
	st := store.NewMemory(UniqueFields(Schemas()))
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return NewResourceService(st, discard, WithClock(tick), WithBcryptCost(bcrypt.MinCost)), st
}

func bootcamp(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "Full stack web development",
		"address":     "233 Bay State Rd Boston MA 02215",
		"careers":     []any{"Web Development", "UI/UX"},
	}
}

func TestCreate_DefaultsAndDerivedFields(t *testing.T) {
	svc, _ := newResources(t)

	body := bootcamp("Devworks Bootcamp")
	body["unknown"] = "dropped"
	body["housing"] = "true"

	d, err := svc.Create(context.Background(), Bootcamps, body, map[string]any{"user": "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, d[store.IDField])
	assert.Equal(t, "devworks-bootcamp", d["slug"])
	assert.Equal(t, "no-photo.jpg", d["photo"])
	assert.Equal(t, true, d["housing"])
	assert.Equal(t, false, d["jobGuarantee"])
	assert.Equal(t, "u1", d["user"])
	assert.IsType(t, time.Time{}, d["createdAt"])
	assert.NotContains(t, d, "unknown")
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newResources(t)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing required", map[string]any{"name": "x"}, "Please add a description, Please add an address, Please add at least one career"},
		{"career enum", func() map[string]any { b := bootcamp("x"); b["careers"] = []any{"Cooking"}; return b }(), `"Cooking" is not a valid careers`},
		{"name too long", bootcamp(strings.Repeat("x", 51)), "name can not be more than 50 characters"},
		{"bad email", func() map[string]any { b := bootcamp("x"); b["email"] = "nope"; return b }(), "Please add a valid email"},
		{"bad number", func() map[string]any { b := bootcamp("x"); b["averageCost"] = "lots"; return b }(), "Invalid value for averageCost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), Bootcamps, tt.body, nil)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Contains(t, ae.Message, tt.want)
		})
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	svc, _ := newResources(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Bootcamps, bootcamp("Devworks"), nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, Bootcamps, bootcamp("Devworks"), nil)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestCreate_OneReviewPerUserAndBootcamp(t *testing.T) {
	svc, _ := newResources(t)
	ctx := context.Background()

	review := map[string]any{"title": "Great", "text": "Learned a lot", "rating": 9.0}
	_, err := svc.Create(ctx, Reviews, review, map[string]any{"bootcamp": "b1", "user": "u1"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Reviews, review, map[string]any{"bootcamp": "b1", "user": "u1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = svc.Create(ctx, Reviews, review, map[string]any{"bootcamp": "b1", "user": "u2"})
	assert.NoError(t, err)
}

func TestGetUpdateDelete(t *testing.T) {
	svc, _ := newResources(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Bootcamps, bootcamp("Devworks"), nil)
	require.NoError(t, err)
	id := created[store.IDField].(string)

	got, err := svc.Get(ctx, Bootcamps, id)
	require.NoError(t, err)
	assert.Equal(t, "Devworks", got["name"])

	updated, err := svc.Update(ctx, Bootcamps, id, map[string]any{"name": "ModernTech", "housing": true})
	require.NoError(t, err)
	assert.Equal(t, "ModernTech", updated["name"])
	assert.Equal(t, "moderntech", updated["slug"])
	assert.Equal(t, true, updated["housing"])
	assert.Equal(t, "Full stack web development", updated["description"], "fields not in the patch are kept")

	_, err = svc.Update(ctx, Bootcamps, id, map[string]any{"averageRating": 11.0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, Bootcamps, id))

	_, err = svc.Get(ctx, Bootcamps, id)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
	assert.Equal(t, "Bootcamp not found with id of "+id, ae.Message)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Delete(ctx, Bootcamps, id)))
	_, err = svc.Update(ctx, Bootcamps, "missing", map[string]any{"name": "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDelete_CascadesToChildren(t *testing.T) {
	svc, st := newResources(t)
	ctx := context.Background()

	camp, err := svc.Create(ctx, Bootcamps, bootcamp("Devworks"), nil)
	require.NoError(t, err)
	campID := camp[store.IDField].(string)

	_, err = svc.Create(ctx, Courses, map[string]any{
		"title": "Front End", "description": "HTML", "weeks": "8", "tuition": 8000.0, "minimumSkill": "beginner",
	}, map[string]any{"bootcamp": campID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Reviews, map[string]any{
		"title": "Great", "text": "Learned a lot", "rating": 9.0,
	}, map[string]any{"bootcamp": campID, "user": "u1"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, Bootcamps, campID))

	for _, coll := range []string{Courses, Reviews} {
		_, total, err := st.List(ctx, coll, store.Query{})
		require.NoError(t, err)
		assert.Zero(t, total, coll)
	}
}

func TestList_AdvancedResults(t *testing.T) {
	svc, _ := newResources(t)
	ctx := context.Background()

	for i, name := range []string{"A Camp", "B Camp", "C Camp"} {
		b := bootcamp(name)
		b["housing"] = i%2 == 0
		b["averageCost"] = float64((i + 1) * 1000)
		_, err := svc.Create(ctx, Bootcamps, b, nil)
		require.NoError(t, err)
	}

	params, err := ParseListParams(url.Values{})
	require.NoError(t, err)
	page, err := svc.List(ctx, Bootcamps, params, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "C Camp", page.Data[0]["name"], "default sort is newest first")

	params, err = ParseListParams(url.Values{"sort": {"averageCost"}, "select": {"name,averageCost"}, "limit": {"2"}})
	require.NoError(t, err)
	page, err = svc.List(ctx, Bootcamps, params, nil)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "A Camp", page.Data[0]["name"])
	assert.NotContains(t, page.Data[0], "description")
	require.NotNil(t, page.Pagination.Next)
	assert.Equal(t, int64(2), page.Pagination.Next.Page)
	assert.Nil(t, page.Pagination.Prev)

	params, err = ParseListParams(url.Values{"sort": {"averageCost"}, "limit": {"2"}, "page": {"2"}})
	require.NoError(t, err)
	page, err = svc.List(ctx, Bootcamps, params, nil)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Nil(t, page.Pagination.Next)
	require.NotNil(t, page.Pagination.Prev)
	assert.Equal(t, int64(1), page.Pagination.Prev.Page)

	params, err = ParseListParams(url.Values{"housing": {"true"}})
	require.NoError(t, err)
	page, err = svc.List(ctx, Bootcamps, params, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestParseListParams(t *testing.T) {
	p, err := ParseListParams(url.Values{"limit": {"500"}, "careers": {"Business"}, "$where": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(MaxLimit), p.Limit)
	assert.Equal(t, int64(1), p.Page)
	assert.Equal(t, []string{"-createdAt"}, p.Sort)
	assert.Equal(t, map[string]any{"careers": "Business"}, p.Filter)

	for _, bad := range []url.Values{{"page": {"0"}}, {"page": {"x"}}, {"limit": {"-1"}}} {
		_, err := ParseListParams(bad)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "%v", bad)
	}
}

func TestUsers_PasswordNeverReturned(t *testing.T) {
	svc, st := newResources(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, Users, map[string]any{"name": "John", "email": "john@gmail.com", "password": "123456"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, u, "password")
	assert.Equal(t, "user", u["role"])

	raw, err := st.Get(ctx, Users, u[store.IDField].(string))
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(raw["password"].(string), "123456"), "password stored hashed")

	params, err := ParseListParams(url.Values{"select": {"password,name"}})
	require.NoError(t, err)
	page, err := svc.List(ctx, Users, params, nil)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.NotContains(t, page.Data[0], "password")

	_, err = svc.Create(ctx, Users, map[string]any{"name": "x", "email": "x@gmail.com", "password": "123"}, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Create(ctx, Users, map[string]any{"name": "x", "email": "y@gmail.com", "password": "123456", "role": "admin"}, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "devworks-bootcamp", slugify("Devworks Bootcamp"))
	assert.Equal(t, "ui-ux-2024", slugify("  UI/UX -- 2024! "))
	assert.Equal(t, "", slugify("!!!"))
}

func TestAuthService(t *testing.T) {
	svc, _ := newResources(t)
	tokens := auth.NewTokens("secret", time.Hour)
	a := NewAuthService(svc, tokens, discard)
	ctx := context.Background()

	tok, user, err := a.Register(ctx, map[string]any{
		"name": "Jane", "email": "jane@gmail.com", "password": "123456", "role": "publisher",
	})
	require.NoError(t, err)
	assert.NotContains(t, user, "password")

	claims, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, user[store.IDField], claims.UserID)
	assert.Equal(t, "publisher", claims.Role)

	tok, err = a.Login(ctx, "jane@gmail.com", "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	_, err = a.Login(ctx, "jane@gmail.com", "wrong")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	_, err = a.Login(ctx, "nobody@gmail.com", "123456")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	_, err = a.Login(ctx, "", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	found, err := a.FindUser(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", found["name"])
	assert.NotContains(t, found, "password")
}
