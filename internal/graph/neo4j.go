package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/telebiz/agentcore/internal/logging"
)

// Neo4j implements Driver over the bolt protocol. Memgraph speaks the same
// protocol and works too.
type Neo4j struct {
	driver neo4j.DriverWithContext
	config Config
}

// NewNeo4j creates a driver. It does not dial; call Ping to verify.
func NewNeo4j(cfg Config) (*Neo4j, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}
	return &Neo4j{driver: driver, config: cfg}, nil
}

func (n *Neo4j) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: n.config.Database,
	})
}

// Execute runs a read query and collects all rows.
func (n *Neo4j) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	session := n.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var records []Record
	for result.Next(ctx) {
		rec := result.Record()
		row := make(Record, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = rec.Values[i]
		}
		records = append(records, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("result iteration failed: %w", err)
	}
	return records, nil
}

// ExecuteWrite runs a write query and waits for it to be applied.
func (n *Neo4j) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	session := n.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("write query failed: %w", err)
	}
	return nil
}

func (n *Neo4j) Close() error {
	return n.driver.Close(context.Background())
}

func (n *Neo4j) Ping(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}

// ConnectWithRetry dials with exponential backoff (100ms, 200ms, ...).
// It returns nil when the graph stays unreachable; the agent runs
// without an audit trail then.
func ConnectWithRetry(ctx context.Context, cfg Config, maxRetries int) *Neo4j {
	log := logging.New("graph")
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := NewNeo4j(cfg)
		if err != nil {
			// a malformed URI will not get better
			log.Warn("graph_unavailable", map[string]any{"uri": cfg.URI}, err)
			return nil
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = db.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			log.Info("graph_connected", map[string]any{"uri": cfg.URI, "attempts": i + 1})
			return db
		}
		db.Close()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(100<<i) * time.Millisecond):
		}
	}
	log.Warn("graph_unavailable", map[string]any{"uri": cfg.URI, "attempts": maxRetries}, lastErr)
	return nil
}

// IsConnectionError reports whether err looks like a network failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "no such host", "timeout", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
