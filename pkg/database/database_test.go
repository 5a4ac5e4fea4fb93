package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{
			name:       "empty config falls back to local sqlite file",
			cfg:        Config{},
			wantDriver: "sqlite",
			wantDSN:    DefaultSQLiteFile,
		},
		{
			name:       "postgres url gets sslmode=require",
			cfg:        Config{URL: "postgres://u:p@db.example.com:5432/market"},
			wantDriver: "postgres",
			wantDSN:    "postgres://u:p@db.example.com:5432/market?sslmode=require",
		},
		{
			name:       "postgresql scheme accepted",
			cfg:        Config{URL: "postgresql://u:p@db.example.com/market"},
			wantDriver: "postgres",
			wantDSN:    "postgresql://u:p@db.example.com/market?sslmode=require",
		},
		{
			name:       "explicit sslmode kept",
			cfg:        Config{URL: "postgres://u:p@localhost/market?sslmode=disable"},
			wantDriver: "postgres",
			wantDSN:    "postgres://u:p@localhost/market?sslmode=disable",
		},
		{
			name:       "mysql url converted to driver dsn",
			cfg:        Config{URL: "mysql://u:p@localhost/market"},
			wantDriver: "mysql",
			wantDSN:    "u:p@tcp(localhost:3306)/market?charset=utf8mb4&loc=UTC&parseTime=True",
		},
		{
			name:       "sqlite relative path",
			cfg:        Config{URL: "sqlite:///market.db"},
			wantDriver: "sqlite",
			wantDSN:    "market.db",
		},
		{
			name:       "sqlite absolute path",
			cfg:        Config{URL: "sqlite:////var/lib/market.db"},
			wantDriver: "sqlite",
			wantDSN:    "/var/lib/market.db",
		},
		{
			name:    "unknown scheme",
			cfg:     Config{URL: "oracle://u:p@localhost/market"},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     Config{Driver: "oracle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := ResolveDSN(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}

func TestNew_SQLiteMemory(t *testing.T) {
	db, err := New(&Config{Driver: "sqlite", FilePath: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)

	type widget struct {
		ID   uint
		Name string
	}
	require.NoError(t, AutoMigrate(db, &widget{}))
	require.NoError(t, db.Create(&widget{Name: "x"}).Error)

	var count int64
	require.NoError(t, db.Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
