package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mds-backend/internal/auth"
	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

func TestDo_RollsBackOnError(t *testing.T) {
	st := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		require.NoError(t, r.Entities.Create(ctx, metadata.NewEntity("a.B", "", "", "")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = st.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		all, err := r.Entities.RetrieveAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		return nil
	})
	require.NoError(t, err)
}

func TestRepos_StoreCopies(t *testing.T) {
	st := New()
	ctx := context.Background()

	var id int64
	require.NoError(t, st.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		e := metadata.NewEntity("a.B", "", "", "")
		if err := r.Entities.Create(ctx, e); err != nil {
			return err
		}
		id = e.ID
		assert.NotEmpty(t, e.Revision)
		e.Name = "mutated after create"

		err := r.Entities.Create(ctx, metadata.NewEntity("a.B", "", "", ""))
		assert.ErrorIs(t, err, schema.ErrEntityAlreadyExists)
		return nil
	}))

	require.NoError(t, st.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		e, err := r.Entities.RetrieveByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "B", e.Name)
		before := e.Revision

		d, err := r.Drafts.Create(ctx, e, "alice")
		require.NoError(t, err)
		assert.Equal(t, before, d.ParentRevision)
		_, err = r.Drafts.Create(ctx, e, "alice")
		assert.Error(t, err, "one draft per owner")

		require.NoError(t, r.Entities.Update(ctx, e))
		assert.NotEqual(t, before, e.Revision)
		assert.True(t, d.Outdated(e))

		require.NoError(t, r.Drafts.SetProperties(ctx, d, e))
		stored, err := r.Drafts.RetrieveByID(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, stored.Outdated(e))

		require.NoError(t, r.Drafts.DeleteAll(ctx, e))
		gone, err := r.Drafts.Retrieve(ctx, e, "alice")
		require.NoError(t, err)
		assert.Nil(t, gone)
		return nil
	}))
}

func TestEntityUpdate_RejectsStaleRevision(t *testing.T) {
	st := New()
	ctx := context.Background()
	require.NoError(t, st.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		e := metadata.NewEntity("a.Stale", "", "", "")
		require.NoError(t, r.Entities.Create(ctx, e))
		first, _ := r.Entities.RetrieveByID(ctx, e.ID)
		second, _ := r.Entities.RetrieveByID(ctx, e.ID)

		require.NoError(t, r.Entities.Update(ctx, first))
		assert.ErrorIs(t, r.Entities.Update(ctx, second), schema.ErrEntityChanged)
		require.NoError(t, r.Entities.Update(ctx, first), "the winner can keep writing")
		return nil
	}))
}

func TestTableCompiler(t *testing.T) {
	st := New()
	ctx := context.Background()
	require.NoError(t, st.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		e := metadata.NewEntity("org.example.Empty", "", "", "")
		return r.Compiler.ConstructEntity(ctx, e)
	}))
	_, ok := st.Table("org_example_empty")
	assert.False(t, ok, "entities without fields are not compiled")
}

func TestUsers_RefreshTokens(t *testing.T) {
	st := New(WithUser(auth.User{Username: "alice", Roles: []string{"admin"}, Active: true}))
	ctx := context.Background()

	u, err := st.FindUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	u.Roles[0] = "changed"
	again, _ := st.FindUser(ctx, "alice")
	assert.Equal(t, []string{"admin"}, again.Roles)

	missing, err := st.FindUser(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exp := time.Now().Add(time.Hour)
	require.NoError(t, st.SaveRefreshToken(ctx, "tok", "alice", exp))
	owner, gotExp, err := st.ConsumeRefreshToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.True(t, exp.Equal(gotExp))

	owner, _, err = st.ConsumeRefreshToken(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, owner, "tokens are single use")
}
