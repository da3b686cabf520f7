// Package sonic connects the lookup-class agent to a SONiC switch's redis
// databases: it reads ports, VLANs, neighbors, routes and learned MACs into a
// switch state, and writes the classIDs computed by the agent back.
package sonic

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/lookupclass/pkg/util"
)

// SONiC redis database numbers.
const (
	ApplDB   = 0
	ConfigDB = 4
	StateDB  = 6
)

// keySeparator returns the table/key separator used by a database. APPL_DB
// keys use ':', CONFIG_DB and STATE_DB use '|'.
func keySeparator(db int) string {
	if db == ApplDB {
		return ":"
	}
	return "|"
}

// ConnectOptions says how to reach the switch's redis. If SSHHost is set the
// connection goes through an SSH tunnel and Addr is ignored.
type ConnectOptions struct {
	Addr    string
	SSHHost string
	SSHUser string
	SSHPass string
	SSHPort int
}

// Client holds one redis client per SONiC database.
type Client struct {
	dbs    map[int]*redis.Client
	tunnel *SSHTunnel // nil if direct
}

// NewClient returns a client for the redis server at addr without
// connecting.
func NewClient(addr string) *Client {
	c := &Client{dbs: make(map[int]*redis.Client)}
	for _, db := range []int{ApplDB, ConfigDB, StateDB} {
		c.dbs[db] = redis.NewClient(&redis.Options{Addr: addr, DB: db})
	}
	return c
}

// Dial connects to the switch and pings every database.
func Dial(ctx context.Context, opts ConnectOptions) (*Client, error) {
	addr := opts.Addr
	var tun *SSHTunnel
	if opts.SSHHost != "" {
		var err error
		tun, err = NewSSHTunnel(opts.SSHHost, opts.SSHUser, opts.SSHPass, opts.SSHPort)
		if err != nil {
			return nil, fmt.Errorf("SSH tunnel to %s: %w", opts.SSHHost, err)
		}
		addr = tun.LocalAddr()
	}

	c := NewClient(addr)
	c.tunnel = tun
	for db, rc := range c.dbs {
		if err := rc.Ping(ctx).Err(); err != nil {
			c.Close()
			return nil, fmt.Errorf("connecting to redis DB %d at %s: %w: %w", db, addr, util.ErrNotConnected, err)
		}
	}
	util.WithField("addr", addr).Info("Connected")
	return c, nil
}

// Close closes every database connection and the tunnel, if any.
func (c *Client) Close() error {
	for _, rc := range c.dbs {
		rc.Close()
	}
	if c.tunnel != nil {
		return c.tunnel.Close()
	}
	return nil
}

func (c *Client) db(n int) *redis.Client { return c.dbs[n] }

// readTable returns every entry of table as entry key -> fields. The entry
// key is the redis key without the table name and separator.
func readTable(ctx context.Context, rc *redis.Client, db int, table string) (map[string]map[string]string, error) {
	prefix := table + keySeparator(db)
	keys, err := scanKeys(ctx, rc, prefix+"*", 100)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", table, err)
	}
	out := make(map[string]map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := rc.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	for i, key := range keys {
		out[key[len(prefix):]] = cmds[i].Val()
	}
	return out, nil
}

// scanKeys iterates Redis keys matching the given pattern using cursor-based
// SCAN instead of the blocking O(N) KEYS command. The count hint controls
// how many keys Redis returns per iteration (not an exact limit).
func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
