//go:build integration

// Package testutil provides helpers for tests that run against a real redis.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisAddr returns the address of the test redis container (IP:port).
// It first checks LOOKUPCLASS_TEST_REDIS_ADDR, then discovers the Docker
// container IP.
func RedisAddr() string {
	if addr := os.Getenv("LOOKUPCLASS_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		"lookupclass-test-redis").Output()
	if err != nil {
		return ""
	}
	ip := strings.TrimSpace(string(out))
	if ip == "" {
		return ""
	}
	return ip + ":6379"
}

// SkipIfNoRedis skips the test if the test redis is not reachable.
func SkipIfNoRedis(t *testing.T) string {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test redis not available: set LOOKUPCLASS_TEST_REDIS_ADDR")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test redis not reachable at %s: %v", addr, err)
	}
	return addr
}

// SeedPath returns the absolute path to a seed file under testdata/seed/.
func SeedPath(name string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "testdata", "seed", name)
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
