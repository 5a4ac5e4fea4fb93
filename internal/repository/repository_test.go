package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	return db
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	u := &domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotZero(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = repo.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_UniqueViolations(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.User{Username: "alice", Email: "a@example.com", PasswordHash: "h"}))

	err := repo.Create(ctx, &domain.User{Username: "alice", Email: "other@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	err = repo.Create(ctx, &domain.User{Username: "bob", Email: "a@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepository_FindConflict(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.User{Username: "alice", Email: "a@example.com", PasswordHash: "h"}))

	tests := []struct {
		name     string
		username string
		email    string
		want     error
	}{
		{"free", "bob", "b@example.com", nil},
		{"username taken", "alice", "b@example.com", ErrUsernameExists},
		{"email taken", "bob", "a@example.com", ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.FindConflict(ctx, tt.username, tt.email)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUserRepository_GetByIDs(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	a := &domain.User{Username: "a", Email: "a@x", PasswordHash: "h"}
	b := &domain.User{Username: "b", Email: "b@x", PasswordHash: "h"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	users, err := repo.GetByIDs(ctx, []uint{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "b", users[b.ID].Username)

	users, err = repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestProductRepository(t *testing.T) {
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	owner := &domain.User{Username: "seller", Email: "s@x", PasswordHash: "h"}
	require.NoError(t, users.Create(ctx, owner))

	for i := 1; i <= 5; i++ {
		p := &domain.Product{
			Title:       fmt.Sprintf("item %d", i),
			Price:       float64(i),
			Description: "desc",
			ImageURL:    "https://img.example.com/x.png",
			OwnerID:     &owner.ID,
		}
		require.NoError(t, repo.Create(ctx, p))
		assert.NotZero(t, p.ID)
	}
	require.NoError(t, repo.Create(ctx, &domain.Product{Title: "orphan", Description: "d", ImageURL: "u"}))

	recent, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "orphan", recent[0].Title)
	assert.Nil(t, recent[0].OwnerID)
	assert.Equal(t, "item 5", recent[1].Title)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "item 1", all[0].Title)
	require.NotNil(t, all[0].OwnerID)
	assert.Equal(t, owner.ID, *all[0].OwnerID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMessageRepository_ListRecent(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	ctx := context.Background()

	for i := 1; i <= 60; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Message{Room: "product_1", Sender: "s", Text: fmt.Sprintf("m%d", i)}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Message{Room: "lobby", Sender: "s", Text: "elsewhere"}))

	msgs, err := repo.ListRecent(ctx, "product_1", domain.HistoryLimit)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	assert.Equal(t, "m11", msgs[0].Text)
	assert.Equal(t, "m60", msgs[49].Text)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID)
	}

	msgs, err = repo.ListRecent(ctx, "empty", domain.HistoryLimit)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(61), n)
}
