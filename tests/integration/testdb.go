// Package integration runs the connector stack against a real PostgreSQL
// started with testcontainers. Tests skip under -short.
package integration

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aurum/backend/internal/infrastructure/migration"
	"github.com/aurum/backend/migrations"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const postgresImage = "postgres:16-alpine"

// truncateOrder lists connector tables with dependents ahead of their parents.
var truncateOrder = []string{
	"external_records",
	"connector_sync_runs",
	"connector_sync_configs",
	"connector_credentials",
	"connectors",
	"external_references",
	"users",
}

// pg is the migrated container every test in the package connects to.
var pg struct {
	mu        sync.Mutex
	container *tcpostgres.PostgresContainer
	dsn       string
}

// TestDB is one test's connection to the shared database.
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewSharedTestDB opens a connection to the package container, starting and
// migrating it on first use. Tests reset state with CleanTables.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	dsn := sharedDSN(t)

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	require.NoError(t, err, "open gorm connection")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return &TestDB{DB: db, t: t}
}

func sharedDSN(t *testing.T) string {
	t.Helper()
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.container != nil {
		return pg.dsn
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("aurum_integration"),
		tcpostgres.WithUsername("aurum"),
		tcpostgres.WithPassword("aurum"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// The migrator closes the handle it is given, so it gets its own.
	migrateDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.NewFromFS(migrateDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "build migrator")
	defer m.Close()
	require.NoError(t, m.Up(), "apply migrations")

	pg.container, pg.dsn = container, dsn
	return dsn
}

// CleanupSharedContainer terminates the package container. Call it from TestMain.
func CleanupSharedContainer() {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = pg.container.Terminate(ctx)
	pg.container, pg.dsn = nil, ""
}

// CleanTables empties every connector table.
func (d *TestDB) CleanTables() {
	d.t.Helper()
	stmt := "TRUNCATE TABLE " + strings.Join(truncateOrder, ", ") + " CASCADE"
	require.NoError(d.t, d.DB.Exec(stmt).Error, "truncate connector tables")
}

// CreateTestUser inserts a user order enrichment can resolve by email.
func (d *TestDB) CreateTestUser(email string) uuid.UUID {
	d.t.Helper()
	id := uuid.New()
	require.NoError(d.t, d.DB.Exec(`INSERT INTO users (id, email) VALUES (?, ?)`, id, email).Error)
	return id
}

// CreateExternalReference maps (source, entityType, externalID) to a fresh internal id.
func (d *TestDB) CreateExternalReference(source, entityType, externalID string) uuid.UUID {
	d.t.Helper()
	id := uuid.New()
	err := d.DB.Exec(
		`INSERT INTO external_references (source, entity_type, external_id, internal_id) VALUES (?, ?, ?, ?)`,
		source, entityType, externalID, id,
	).Error
	require.NoError(d.t, err)
	return id
}

// CountRows counts rows in table.
func (d *TestDB) CountRows(table string) int64 {
	d.t.Helper()
	var n int64
	require.NoError(d.t, d.DB.Table(table).Count(&n).Error, "count %s", table)
	return n
}
