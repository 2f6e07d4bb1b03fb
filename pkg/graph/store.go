package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/apperr"
)

// Node is a stored entity.
type Node struct {
	ID    string
	Kind  models.EntityKind
	Key   string
	Props map[string]string
}

// Edge links two entities by their unique keys. The endpoint kinds are fixed
// by Rel.
type Edge struct {
	Rel     models.RelKind
	FromKey string
	ToKey   string
	Props   map[string]string
}

// Stats counts stored nodes per kind and edges per relationship.
type Stats struct {
	Nodes map[models.EntityKind]int `yaml:"nodes"`
	Edges map[models.RelKind]int    `yaml:"edges"`
}

// Store is the graph persistence contract.
type Store interface {
	UpsertNode(ctx context.Context, e models.Entity) (string, error)
	UpsertEdge(ctx context.Context, e Edge) error
	FindNode(ctx context.Context, kind models.EntityKind, key string) (string, error)
	GetProperties(ctx context.Context, kind models.EntityKind, id string) (map[string]string, error)
	GetRelated(ctx context.Context, kind models.EntityKind, id string, rel models.RelKind, dir models.Direction) ([]Node, error)
	ListNodes(ctx context.Context, kind models.EntityKind) ([]Node, error)
	Stats(ctx context.Context) (Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLStore)(nil)

// UpsertNode merges the entity on its unique key and returns its id. A new
// entity gets a fresh uuid; an existing one keeps its id and has its
// properties replaced.
func (db *SQLStore) UpsertNode(ctx context.Context, e models.Entity) (string, error) {
	kind := e.Kind()
	if !kind.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	if e.Key() == "" {
		return "", fmt.Errorf("%s has an empty %s", kind, kind.KeyProperty())
	}
	props, err := json.Marshal(e.Properties())
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}

	var id string
	err = db.QueryRowContext(ctx, db.rebind(`
		INSERT INTO graph_nodes (id, kind, node_key, props) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, node_key) DO UPDATE SET props = excluded.props, updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`), uuid.NewString(), string(kind), e.Key(), string(props)).Scan(&id)
	if err != nil {
		return "", wrapErr("upsert "+string(kind), err)
	}
	return id, nil
}

// UpsertEdge creates the relationship when both endpoints exist. A missing
// endpoint returns apperr.ErrOrphanRelationship and nothing is created.
func (db *SQLStore) UpsertEdge(ctx context.Context, e Edge) error {
	fromKind, toKind, ok := e.Rel.Endpoints()
	if !ok {
		return fmt.Errorf("unknown relationship %q", e.Rel)
	}

	fromID, err := db.FindNode(ctx, fromKind, e.FromKey)
	if err != nil {
		return err
	}
	toID, err := db.FindNode(ctx, toKind, e.ToKey)
	if err != nil {
		return err
	}
	if fromID == "" || toID == "" {
		return fmt.Errorf("%w: %s(%s) -[%s]-> %s(%s)", apperr.ErrOrphanRelationship, fromKind, e.FromKey, e.Rel, toKind, e.ToKey)
	}

	var props sql.NullString
	if len(e.Props) > 0 {
		data, err := json.Marshal(e.Props)
		if err != nil {
			return fmt.Errorf("failed to encode edge properties: %w", err)
		}
		props = sql.NullString{String: string(data), Valid: true}
	}

	_, err = db.ExecContext(ctx, db.rebind(`
		INSERT INTO graph_edges (src_id, rel, dst_id, props) VALUES (?, ?, ?, ?)
		ON CONFLICT (src_id, rel, dst_id) DO UPDATE SET props = excluded.props
	`), fromID, string(e.Rel), toID, props)
	if err != nil {
		return wrapErr("upsert "+string(e.Rel), err)
	}
	return nil
}

// FindNode returns the id of the entity with the given key, or "" when absent.
func (db *SQLStore) FindNode(ctx context.Context, kind models.EntityKind, key string) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, db.rebind(
		"SELECT id FROM graph_nodes WHERE kind = ? AND node_key = ?"),
		string(kind), key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapErr("find "+string(kind), err)
	}
	return id, nil
}

// GetProperties returns the properties of a node, or nil when it does not exist.
func (db *SQLStore) GetProperties(ctx context.Context, kind models.EntityKind, id string) (map[string]string, error) {
	var raw string
	err := db.QueryRowContext(ctx, db.rebind(
		"SELECT props FROM graph_nodes WHERE kind = ? AND id = ?"),
		string(kind), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get properties", err)
	}
	return decodeProps(raw)
}

// GetRelated follows rel from the node in the given direction and returns
// the neighbours in discovery order. kind must be the relationship's source
// kind for Outgoing and its target kind for Incoming.
func (db *SQLStore) GetRelated(ctx context.Context, kind models.EntityKind, id string, rel models.RelKind, dir models.Direction) ([]Node, error) {
	fromKind, toKind, ok := rel.Endpoints()
	if !ok {
		return nil, fmt.Errorf("unknown relationship %q", rel)
	}

	var query string
	switch dir {
	case models.Outgoing:
		if kind != fromKind {
			return nil, fmt.Errorf("%s has no outgoing %s", kind, rel)
		}
		query = `
			SELECT n.id, n.kind, n.node_key, n.props FROM graph_edges e
			JOIN graph_nodes n ON n.id = e.dst_id
			WHERE e.src_id = ? AND e.rel = ?
			ORDER BY e.seq`
	case models.Incoming:
		if kind != toKind {
			return nil, fmt.Errorf("%s has no incoming %s", kind, rel)
		}
		query = `
			SELECT n.id, n.kind, n.node_key, n.props FROM graph_edges e
			JOIN graph_nodes n ON n.id = e.src_id
			WHERE e.dst_id = ? AND e.rel = ?
			ORDER BY e.seq`
	case models.Both:
		var nodes []Node
		for _, d := range []models.Direction{models.Outgoing, models.Incoming} {
			if (d == models.Outgoing && kind != fromKind) || (d == models.Incoming && kind != toKind) {
				continue
			}
			related, err := db.GetRelated(ctx, kind, id, rel, d)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, related...)
		}
		if kind != fromKind && kind != toKind {
			return nil, fmt.Errorf("%s is not an endpoint of %s", kind, rel)
		}
		return nodes, nil
	default:
		return nil, fmt.Errorf("unknown direction %v", dir)
	}

	rows, err := db.QueryContext(ctx, db.rebind(query), id, string(rel))
	if err != nil {
		return nil, wrapErr("query related", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListNodes returns every node of a kind ordered by key.
func (db *SQLStore) ListNodes(ctx context.Context, kind models.EntityKind) ([]Node, error) {
	rows, err := db.QueryContext(ctx, db.rebind(
		"SELECT id, kind, node_key, props FROM graph_nodes WHERE kind = ? ORDER BY node_key"),
		string(kind))
	if err != nil {
		return nil, wrapErr("list "+string(kind), err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func (db *SQLStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Nodes: make(map[models.EntityKind]int), Edges: make(map[models.RelKind]int)}

	rows, err := db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM graph_nodes GROUP BY kind")
	if err != nil {
		return stats, wrapErr("count nodes", err)
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("failed to scan node count: %w", err)
		}
		stats.Nodes[models.EntityKind(kind)] = n
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, "SELECT rel, COUNT(*) FROM graph_edges GROUP BY rel")
	if err != nil {
		return stats, wrapErr("count edges", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rel string
		var n int
		if err := rows.Scan(&rel, &n); err != nil {
			return stats, fmt.Errorf("failed to scan edge count: %w", err)
		}
		stats.Edges[models.RelKind(rel)] = n
	}
	return stats, rows.Err()
}

// Reset deletes every node and edge.
func (db *SQLStore) Reset(ctx context.Context) error {
	for _, q := range []string{"DELETE FROM graph_edges", "DELETE FROM graph_nodes"} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return wrapErr("reset graph", err)
		}
	}
	return nil
}

func scanNodes(rows *sql.Rows) ([]Node, error) {
	var nodes []Node
	for rows.Next() {
		var n Node
		var kind, raw string
		if err := rows.Scan(&n.ID, &kind, &n.Key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Kind = models.EntityKind(kind)
		props, err := decodeProps(raw)
		if err != nil {
			return nil, err
		}
		n.Props = props
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	return nodes, nil
}

func decodeProps(raw string) (map[string]string, error) {
	props := make(map[string]string)
	if raw == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return props, nil
}
