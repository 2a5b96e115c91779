package postgresql

import (
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    string
		wantErr bool
	}{
		{
			name:   "endpoint without key",
			config: Config{URL: "postgres://addipi@localhost:5432/addipi?sslmode=disable"},
			want:   "postgres://addipi@localhost:5432/addipi?sslmode=disable",
		},
		{
			name:   "key is injected as password",
			config: Config{URL: "postgresql://addipi@db:5432/addipi", Password: "s3cr3t"},
			want:   "postgresql://addipi:s3cr3t@db:5432/addipi",
		},
		{
			name:    "unsupported scheme",
			config:  Config{URL: "mysql://localhost/addipi"},
			wantErr: true,
		},
		{
			name:    "unparseable endpoint",
			config:  Config{URL: "postgres://%zz"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.DSN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	client := NewFromDB(sqlx.NewDb(db, "postgres"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, client.HealthCheck(t.Context()))
	assert.Contains(t, client.Stats(), "OpenConns")

	mock.ExpectClose()
	assert.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
