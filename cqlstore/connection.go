// Package cqlstore is a Cassandra-backed implementation of commands.Executor
// and store.ConnectionFactory: a Config/Connection shape and a
// Session.Query(...).WithContext(ctx).Exec() statement style against
// yessql's generic Document/index-row tables.
package cqlstore

import (
	"time"

	"github.com/gocql/gocql"

	"github.com/andrewcoll/yessql"
)

// Config configures the Cassandra cluster connection and keyspace.
type Config struct {
	ClusterHosts      []string
	Keyspace          string
	Consistency       gocql.Consistency
	ConnectionTimeout time.Duration
	Authenticator     gocql.Authenticator
}

// DefaultConfig applies conventional defaults: LocalQuorum consistency
// against a local single-node cluster.
func DefaultConfig() Config {
	return Config{
		ClusterHosts:      []string{"127.0.0.1"},
		Keyspace:          "yessql",
		Consistency:       gocql.LocalQuorum,
		ConnectionTimeout: 10 * time.Second,
	}
}

// consistencyForIsolation maps a session isolation level onto a gocql
// consistency level for the batch this session's commands execute in.
func consistencyForIsolation(level yessql.IsolationLevel) gocql.Consistency {
	switch level {
	case yessql.Serializable:
		return gocql.All
	case yessql.RepeatableRead:
		return gocql.Quorum
	default:
		return gocql.LocalQuorum
	}
}

// Open dials the Cassandra cluster described by cfg and returns a live
// gocql.Session.
func Open(cfg Config) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.ClusterHosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = cfg.Consistency
	if cfg.ConnectionTimeout > 0 {
		cluster.Timeout = cfg.ConnectionTimeout
	}
	if cfg.Authenticator != nil {
		cluster.Authenticator = cfg.Authenticator
	}
	return cluster.CreateSession()
}
