// Package graph keeps an audit trail of agent executions in a neo4j
// compatible graph: which request touched which chats, step by step.
package graph

import (
	"context"

	"github.com/telebiz/agentcore/internal/config"
)

// Record is a single result row from a query.
type Record map[string]any

// Reader runs read-only queries.
type Reader interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// Writer runs write queries (CREATE, MERGE, SET, DELETE).
type Writer interface {
	ExecuteWrite(ctx context.Context, query string, params map[string]any) error
}

// Driver is the full graph database contract.
type Driver interface {
	Reader
	Writer

	Close() error
	Ping(ctx context.Context) error
}

// Config holds database connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Enabled reports whether a graph URI is configured.
func (c Config) Enabled() bool { return c.URI != "" }

// FromConfig maps the agent configuration onto a graph Config.
func FromConfig(c config.Neo4jConfig) Config {
	return Config{
		URI:      c.URI,
		Username: c.User,
		Password: c.Password,
		Database: c.Database,
	}
}
