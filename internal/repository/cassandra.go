package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/flow-market/internal/config"
)

var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages_by_room (
		room       text,
		msg_id     timeuuid,
		sender     text,
		body       text,
		created_at timestamp,
		PRIMARY KEY ((room), msg_id)
	) WITH CLUSTERING ORDER BY (msg_id DESC)`,
	`CREATE TABLE IF NOT EXISTS message_totals (
		scope text PRIMARY KEY,
		total counter
	)`,
}

func newCluster(cfg config.CassandraConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Consistency = consistency(cfg.Consistency)
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}
	return cluster
}

// OpenCassandra creates the keyspace and tables when missing and returns a
// session bound to the keyspace.
func OpenCassandra(cfg config.CassandraConfig) (*gocql.Session, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("cassandra: no hosts configured")
	}
	if cfg.Keyspace == "" {
		cfg.Keyspace = "flow_market"
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}

	bootstrap, err := newCluster(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: connect: %w", err)
	}
	err = bootstrap.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		cfg.Keyspace, cfg.ReplicationFactor,
	)).Exec()
	bootstrap.Close()
	if err != nil {
		return nil, fmt.Errorf("cassandra: create keyspace %s: %w", cfg.Keyspace, err)
	}

	cluster := newCluster(cfg)
	cluster.Keyspace = cfg.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: connect to %s: %w", cfg.Keyspace, err)
	}
	for _, stmt := range cassandraSchema {
		if err := session.Query(stmt).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("cassandra: migrate: %w", err)
		}
	}
	return session, nil
}

func consistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.LocalOne
	}
}
