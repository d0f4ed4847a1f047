package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/creastat/orchestrator/pkgraph"
	"github.com/creastat/orchestrator/wire"
)

type staticEdgeRow struct {
	FromNodeID uuid.UUID
	ToNodeID   uuid.UUID
	SourceKey  string
	TargetKey  string
}

// loadPipelineGraph fetches the static shape of a pipeline: its nodes
// (joined with publisher/identifier/version/container/config metadata from
// `nodes`, and trigger config from `pipeline_triggers` via the nullable
// `pipeline_nodes.trigger_id` FK) and the typed connections between them.
// Grounded on the left-join query in original_source/scheduler/src/main.rs
// and the real column layout in
// original_source/db/src/migrations/m20241208_130842_pipeline_schema.rs
// (`pipeline_nodes` carries no config of its own — `config` lives on
// `nodes`, and the only trigger-related column is `trigger_id`), expressed
// with database/sql + lib/pq instead of sea-orm's query builder.
func loadPipelineGraph(ctx context.Context, db *sql.DB, pipelineID uuid.UUID) (*pkgraph.Graph, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT pn.id, n.publisher_name, n.name, pn.node_version, n.container_type,
		       n.config, pt.config
		FROM pipeline_nodes pn
		JOIN nodes n ON n.id = pn.node_id
		LEFT JOIN pipeline_triggers pt ON pt.id = pn.trigger_id
		WHERE pn.pipeline_id = $1
	`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("query pipeline_nodes: %w", err)
	}
	defer rows.Close()

	graph := pkgraph.NewGraph()
	for rows.Next() {
		var id uuid.UUID
		var publisher, identifier, version, containerType string
		var configJSON, triggerJSON []byte
		if err := rows.Scan(&id, &publisher, &identifier, &version, &containerType, &configJSON, &triggerJSON); err != nil {
			return nil, fmt.Errorf("scan pipeline_node row: %w", err)
		}
		container, err := parseContainerType(containerType)
		if err != nil {
			return nil, err
		}
		cfg, err := parseNodeConfig(configJSON)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		trigger, err := parseTriggerConfig(triggerJSON)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		node := &pkgraph.Node{
			ID:         id,
			Publisher:  publisher,
			Identifier: identifier,
			Version:    version,
			Container:  container,
			Config:     cfg,
			Trigger:    trigger,
		}
		if err := graph.AddNode(node); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := db.QueryContext(ctx, `
		SELECT from_node_id, to_node_id, source_key, target_key
		FROM pipeline_nodes_connections
		WHERE pipeline_id = $1
	`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("query pipeline_nodes_connections: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e staticEdgeRow
		if err := edgeRows.Scan(&e.FromNodeID, &e.ToNodeID, &e.SourceKey, &e.TargetKey); err != nil {
			return nil, fmt.Errorf("scan connection row: %w", err)
		}
		if err := graph.AddEdge(&pkgraph.Edge{
			FromNodeID: e.FromNodeID,
			ToNodeID:   e.ToNodeID,
			SourceKey:  e.SourceKey,
			TargetKey:  e.TargetKey,
		}); err != nil {
			return nil, err
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	return graph, nil
}

func parseContainerType(s string) (wire.ContainerKind, error) {
	switch strings.ToLower(s) {
	case "wasm":
		return wire.ContainerWasm, nil
	case "docker":
		return wire.ContainerDocker, nil
	default:
		return "", fmt.Errorf("invalid container type %q", s)
	}
}

func parseNodeConfig(raw []byte) (pkgraph.NodeConfig, error) {
	if len(raw) == 0 {
		return pkgraph.NodeConfig{}, nil
	}
	var cfg pkgraph.NodeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return pkgraph.NodeConfig{}, fmt.Errorf("parse node config: %w", err)
	}
	return cfg, nil
}

// parseTriggerConfig decodes a joined pipeline_triggers.config column.
// Returns nil when the node has no trigger_id (the left join produced no
// row, so the driver reports NULL) — only the pipeline's trigger anchor
// node carries one.
func parseTriggerConfig(raw []byte) (*pkgraph.TriggerConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var cfg pkgraph.TriggerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse trigger config: %w", err)
	}
	return &cfg, nil
}

// insertNodeExecs bulk-inserts one pipeline_node_exec row per graph node and
// returns the generated id keyed by pipeline_node_id. database/sql has no
// trouble scanning RETURNING rows from a multi-row INSERT — unlike sea-orm,
// which forced the teacher's original down to raw SQL for this
// (original_source/scheduler/src/main.rs: "Because sea-orm doesn't support
// RETURNING the inserted id, we need to use raw SQL").
func insertNodeExecs(ctx context.Context, db *sql.DB, pipelineExecID uuid.UUID, nodeIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	if len(nodeIDs) == 0 {
		return map[uuid.UUID]uuid.UUID{}, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO pipeline_node_exec (id, pipeline_exec_id, pipeline_node_id, status) VALUES ")
	args := make([]any, 0, len(nodeIDs)*2)
	for i, nodeID := range nodeIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*2 + 1
		fmt.Fprintf(&sb, "(gen_random_uuid(), $%d, $%d, 'pending')", base, base+1)
		args = append(args, pipelineExecID, nodeID)
	}
	sb.WriteString(" RETURNING id, pipeline_node_id")

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline_node_exec rows: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]uuid.UUID, len(nodeIDs))
	for rows.Next() {
		var execID, nodeID uuid.UUID
		if err := rows.Scan(&execID, &nodeID); err != nil {
			return nil, fmt.Errorf("scan returning row: %w", err)
		}
		result[nodeID] = execID
	}
	return result, rows.Err()
}

// transitionNodeExec moves one pipeline_node_exec row to a new status,
// stamping started_at/finished_at as appropriate.
func transitionNodeExec(ctx context.Context, db *sql.DB, nodeExecID uuid.UUID, status wire.ExecStatus) error {
	switch status {
	case wire.StatusRunning:
		_, err := db.ExecContext(ctx, `UPDATE pipeline_node_exec SET status = $1, started_at = now() WHERE id = $2`, status, nodeExecID)
		return err
	case wire.StatusCompleted, wire.StatusFailed:
		_, err := db.ExecContext(ctx, `UPDATE pipeline_node_exec SET status = $1, finished_at = now() WHERE id = $2`, status, nodeExecID)
		return err
	default:
		_, err := db.ExecContext(ctx, `UPDATE pipeline_node_exec SET status = $1 WHERE id = $2`, status, nodeExecID)
		return err
	}
}

// storeNodeExecResult persists a node-exec's result JSON alongside its
// terminal status transition.
func storeNodeExecResult(ctx context.Context, db *sql.DB, nodeExecID uuid.UUID, status wire.ExecStatus, result json.RawMessage) error {
	_, err := db.ExecContext(ctx, `
		UPDATE pipeline_node_exec
		SET status = $1, result = $2, finished_at = now()
		WHERE id = $3
	`, status, []byte(result), nodeExecID)
	return err
}

// transitionPipelineExec moves the parent pipeline_exec row to a new status.
func transitionPipelineExec(ctx context.Context, db *sql.DB, pipelineExecID uuid.UUID, status wire.ExecStatus) error {
	switch status {
	case wire.StatusRunning:
		_, err := db.ExecContext(ctx, `UPDATE pipeline_exec SET status = $1, started_at = now() WHERE id = $2`, status, pipelineExecID)
		return err
	case wire.StatusCompleted, wire.StatusFailed:
		_, err := db.ExecContext(ctx, `UPDATE pipeline_exec SET status = $1, finished_at = now() WHERE id = $2`, status, pipelineExecID)
		return err
	default:
		_, err := db.ExecContext(ctx, `UPDATE pipeline_exec SET status = $1 WHERE id = $2`, status, pipelineExecID)
		return err
	}
}
