package integration

import (
	"context"
	"os"
	"testing"
	"time"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/pagebus/busd/internal/persistence"
)

var (
	redisAddr   string
	postgresDSN string
)

// TestMain boots one shared Redis and one shared Postgres container for the
// whole package rather than one per test.
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redisC, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		os.Stderr.WriteString("start redis container: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer redisC.Terminate(ctx)

	addr, err := redisC.Endpoint(ctx, "")
	if err != nil {
		os.Stderr.WriteString("redis endpoint: " + err.Error() + "\n")
		os.Exit(1)
	}
	redisAddr = addr

	pgC, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("busd"),
		tcpostgres.WithUsername("busd"),
		tcpostgres.WithPassword("busd"),
	)
	if err != nil {
		os.Stderr.WriteString("start postgres container: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer pgC.Terminate(ctx)

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		os.Stderr.WriteString("postgres dsn: " + err.Error() + "\n")
		os.Exit(1)
	}
	postgresDSN = dsn

	os.Exit(m.Run())
}

// openStore opens a fresh persistence.Store against the shared containers.
// It does no scoping of its own: each test uses its own topic ids so tests
// don't collide on Redis keys or Postgres rows.
func openStore(t *testing.T) *persistence.Store {
	t.Helper()
	ctx := context.Background()

	store, err := persistence.Open(ctx, persistence.Config{
		RedisAddr:   redisAddr,
		PostgresDSN: postgresDSN,
		Compress:    true,
	})
	if err != nil {
		t.Fatalf("open persistence store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
