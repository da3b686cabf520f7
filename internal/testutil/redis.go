//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
)

// Seed files per database. APPL_DB is 0, CONFIG_DB 4, STATE_DB 6.
var seedFiles = map[int]string{
	0: "appldb.json",
	4: "configdb.json",
	6: "statedb.json",
}

func separator(db int) string {
	if db == 0 {
		return ":"
	}
	return "|"
}

// SeedRedis loads a JSON seed file into a specific redis database.
// The JSON format is: { "TABLE": { "key": { "field": "value", ... }, ... }, ... }
// Each entry becomes a hash at "TABLE<sep>key", where sep is ':' in APPL_DB
// and '|' elsewhere.
func SeedRedis(t *testing.T, addr string, db int, seedFile string) {
	t.Helper()

	data, err := os.ReadFile(seedFile)
	if err != nil {
		t.Fatalf("reading seed file %s: %v", seedFile, err)
	}

	var tables map[string]map[string]map[string]string
	if err := json.Unmarshal(data, &tables); err != nil {
		t.Fatalf("parsing seed file %s: %v", seedFile, err)
	}

	for table, entries := range tables {
		for key, fields := range entries {
			WriteEntry(t, addr, db, table, key, fields)
		}
	}
}

// FlushDB flushes a specific redis database.
func FlushDB(t *testing.T, addr string, db int) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// SetupAllDBs flushes APPL_DB, CONFIG_DB and STATE_DB and seeds each from
// its seed file.
func SetupAllDBs(t *testing.T, addr string) {
	t.Helper()

	for db, file := range seedFiles {
		FlushDB(t, addr, db)
		SeedRedis(t, addr, db, SeedPath(file))
	}
}

// WriteEntry writes a single hash entry to a specific redis DB. An entry
// without fields is stored with a NULL placeholder, as SONiC does.
func WriteEntry(t *testing.T, addr string, db int, table, key string, fields map[string]string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	redisKey := table + separator(db) + key
	args := make([]interface{}, 0, len(fields)*2+2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if len(args) == 0 {
		args = append(args, "NULL", "NULL")
	}
	if err := client.HSet(context.Background(), redisKey, args...).Err(); err != nil {
		t.Fatalf("writing %s: %v", redisKey, err)
	}
}

// DeleteEntry removes a key from a specific redis DB.
func DeleteEntry(t *testing.T, addr string, db int, table, key string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	redisKey := table + separator(db) + key
	if err := client.Del(context.Background(), redisKey).Err(); err != nil {
		t.Fatalf("deleting %s: %v", redisKey, err)
	}
}

// ReadEntry reads a hash entry from a specific redis DB.
func ReadEntry(t *testing.T, addr string, db int, table, key string) map[string]string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	redisKey := table + separator(db) + key
	vals, err := client.HGetAll(context.Background(), redisKey).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", redisKey, err)
	}
	return vals
}

// EntryExists checks if a key exists in a specific redis DB.
func EntryExists(t *testing.T, addr string, db int, table, key string) bool {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	redisKey := table + separator(db) + key
	n, err := client.Exists(context.Background(), redisKey).Result()
	if err != nil {
		t.Fatalf("checking existence of %s: %v", redisKey, err)
	}
	return n > 0
}
