package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/repository"
	"github.com/weiawesome/flow-market/pkg/database"
	"github.com/weiawesome/flow-market/pkg/jwt"
)

type testRepos struct {
	db       *gorm.DB
	users    repository.UserRepository
	products repository.ProductRepository
	messages repository.MessageRepository
}

func newTestRepos(t *testing.T) *testRepos {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	return &testRepos{
		db:       db,
		users:    repository.NewGormUserRepository(db),
		products: repository.NewGormProductRepository(db),
		messages: repository.NewGormMessageRepository(db),
	}
}

func newTestAuth(t *testing.T, users repository.UserRepository) AuthService {
	t.Helper()
	tokens, err := jwt.NewManager("test-secret", time.Hour, "flow-market")
	require.NoError(t, err)
	return NewAuthService(users, tokens, WithHashCost(bcrypt.MinCost))
}
