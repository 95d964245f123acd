//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("mds"),
		tcpostgres.WithUsername("mds"),
		tcpostgres.WithPassword("mds"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, "postgres", dsn, metadata.DefaultTypes())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	return s
}

func TestPostgres_DraftLifecycle(t *testing.T) {
	s := newPostgresStore(t)
	svc := schema.NewService(s, metadata.DefaultTypes(), ns)
	ctx := context.Background()

	e, err := svc.Create(ctx, metadata.EntityDTO{Name: "Patient"}, "admin")
	require.NoError(t, err)

	_, err = svc.Create(ctx, metadata.EntityDTO{Name: "Patient"}, "admin")
	assert.True(t, errors.Is(err, schema.ErrEntityAlreadyExists), "got %v", err)

	_, err = svc.SaveDraftChange(ctx, e.ID, metadata.DraftChange{
		Action: metadata.ActionCreateField, TypeClass: "decimal", DisplayName: "Weight", Name: "weight",
	}, "admin")
	require.NoError(t, err)
	_, err = svc.Commit(ctx, e.ID, "admin")
	require.NoError(t, err)

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "mds_entity_patient")
	require.NoError(t, err)
	assert.Equal(t, "bigint", cols["id"])
	assert.Equal(t, "numeric", cols["weight"])

	u, err := s.FindUser(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, []string{"admin"}, u.Roles)
}

func TestPostgres_DDLRollsBack(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		e := metadata.NewEntity("org.example.Temp", "", "", "")
		str, _ := metadata.DefaultTypes().Resolve("string")
		e.AddField(metadata.NewField(str, "Note", "note"))
		require.NoError(t, r.Entities.Create(ctx, e))
		require.NoError(t, r.Compiler.ConstructEntity(ctx, e))
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := s.Dialect.TableExists(ctx, s.DB, "org_example_temp")
	require.NoError(t, err)
	assert.False(t, exists, "DDL is transactional")
}

func TestPostgres_ConcurrentUpdateConflicts(t *testing.T) {
	s := newPostgresStore(t)
	svc := schema.NewService(s, metadata.DefaultTypes(), ns)
	ctx := context.Background()

	e, err := svc.Create(ctx, metadata.EntityDTO{Name: "Ward"}, "admin")
	require.NoError(t, err)

	read := make(chan struct{})
	written := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- s.Do(ctx, func(ctx context.Context, r schema.Repos) error {
			stale, err := r.Entities.RetrieveByID(ctx, e.ID)
			if err != nil {
				return err
			}
			close(read)
			<-written
			stale.Name = "first"
			return r.Entities.Update(ctx, stale)
		})
	}()

	<-read
	require.NoError(t, s.Do(ctx, func(ctx context.Context, r schema.Repos) error {
		cur, err := r.Entities.RetrieveByID(ctx, e.ID)
		if err != nil {
			return err
		}
		cur.Name = "second"
		return r.Entities.Update(ctx, cur)
	}))
	close(written)

	err = <-errc
	assert.True(t, errors.Is(err, schema.ErrEntityChanged), "got %v", err)

	after, err := svc.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", after.Name)
}
