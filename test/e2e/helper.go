package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asakaida/yakuwari/internal/infrastructure/config"
	"github.com/asakaida/yakuwari/internal/infrastructure/database"
	"github.com/asakaida/yakuwari/internal/repositories/postgres"
	"github.com/asakaida/yakuwari/internal/services/authorization"
	"github.com/asakaida/yakuwari/pkg/cache/memorycache"
)

// E2EEnv holds a Manager wired to the real test database
type E2EEnv struct {
	Manager *authorization.Manager
	Cache   *memorycache.Cache
	ConnStr string
	pg      *database.Postgres
}

// SetupE2ETest connects to the test database, runs migrations, wipes the
// auth tables, and returns a Manager backed by the Postgres repositories
// with an in-memory snapshot cache. The test is skipped when the database
// is unreachable.
func SetupE2ETest(t *testing.T) *E2EEnv {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Skipf("skipping e2e: failed to initialize config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Skipf("skipping e2e: failed to load config: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("skipping e2e: failed to connect to database: %v", err)
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}
	migrationsPath := projectRoot + "/internal/infrastructure/database/migrations/postgres"
	if err := pg.RunMigrations(migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanupDatabase(t, pg)

	mc, err := memorycache.New(&memorycache.Config{EnableMetrics: true})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	manager := authorization.NewManagerWithCache(
		postgres.NewPostgresItemRepository(pg.DB),
		postgres.NewPostgresHierarchyRepository(pg.DB),
		postgres.NewPostgresRuleRepository(pg.DB),
		postgres.NewPostgresAssignmentRepository(pg.DB),
		mc,
		"e2e:auth-graph",
		5*time.Minute,
	)

	env := &E2EEnv{
		Manager: manager,
		Cache:   mc,
		ConnStr: cfg.Database.ConnectionString(),
		pg:      pg,
	}
	t.Cleanup(func() {
		cleanupDatabase(t, pg)
		pg.Close()
	})
	return env
}

// cleanupDatabase wipes every auth table in dependency order
func cleanupDatabase(t *testing.T, pg *database.Postgres) {
	t.Helper()
	for _, table := range []string{"auth_assignment", "auth_item_child", "auth_item", "auth_rule"} {
		if _, err := pg.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Fatalf("failed to clean %s: %v", table, err)
		}
	}
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
