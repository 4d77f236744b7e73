package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pps/internal/config"
)

// Postgres is the pgx/pgxpool-backed Store implementation, grounded on
// manifold's internal/persistence/databases pool/factory pattern: one pool
// per process, schema search_path scoped to the owning entity so "one
// entity, one private store" holds without a separate database per entity
// (spec.md §9.3 Open Question resolution).
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// Connect opens a pool against cfg.DSN, creates the entity's schema and
// tables if they do not exist, and returns a ready Store.
func Connect(ctx context.Context, cfg config.RelationalConfig, schema string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse relational dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect relational store: %w", err)
	}
	p := &Postgres{pool: pool, schema: schema}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) qualify(table string) string {
	return fmt.Sprintf("%s.%s", pgx.Identifier{p.schema}.Sanitize(), table)
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{p.schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			channel TEXT NOT NULL,
			author_name TEXT NOT NULL,
			is_own_utterance BOOLEAN NOT NULL DEFAULT false,
			content TEXT NOT NULL,
			session_id TEXT,
			external_id TEXT,
			summary_id BIGINT,
			graphiti_batch_id BIGINT
		)`, p.qualify("messages")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			summary_text TEXT NOT NULL,
			start_message_id BIGINT NOT NULL,
			end_message_id BIGINT NOT NULL,
			message_count INT NOT NULL,
			channels JSONB NOT NULL DEFAULT '[]',
			summary_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.qualify("message_summaries")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			status TEXT NOT NULL,
			turn_ids JSONB NOT NULL DEFAULT '[]',
			turn_range TEXT NOT NULL DEFAULT '',
			channels JSONB NOT NULL DEFAULT '[]',
			error_category TEXT
		)`, p.qualify("graphiti_batches")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			daemon_type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			event_type TEXT NOT NULL,
			event_data JSONB NOT NULL DEFAULT '{}',
			duration_ms BIGINT
		)`, p.qualify("daemon_traces")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			end_time TIMESTAMPTZ,
			cwd TEXT,
			metadata JSONB NOT NULL DEFAULT '{}'
		)`, p.qualify("terminal_sessions")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS messages_unsummarized_idx ON %s (id) WHERE summary_id IS NULL", p.qualify("messages")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS messages_uningested_idx ON %s (id) WHERE graphiti_batch_id IS NULL", p.qualify("messages")),
	}
	for _, s := range stmts {
		if _, err := p.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Store(ctx context.Context, t Turn) (int64, error) {
	if t.ExternalID != nil && *t.ExternalID != "" {
		// Cross-channel dedup at the single entry point all channels funnel
		// through (spec.md §9 Open Question: assumed, not enforced everywhere).
		var existing int64
		err := p.pool.QueryRow(ctx, fmt.Sprintf(
			"SELECT id FROM %s WHERE session_id IS NOT DISTINCT FROM $1 AND external_id = $2 LIMIT 1",
			p.qualify("messages")), t.SessionID, *t.ExternalID).Scan(&existing)
		if err == nil {
			return existing, nil
		}
	}
	var id int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (channel, author_name, is_own_utterance, content, session_id, external_id)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, p.qualify("messages")),
		t.Channel, t.AuthorName, t.IsOwnUtterance, t.Content, t.SessionID, t.ExternalID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store turn: %w", err)
	}
	return id, nil
}

func (p *Postgres) CountUnsummarized(ctx context.Context) (int, error) {
	return p.count(ctx, "summary_id IS NULL AND length(content) >= 10")
}

func (p *Postgres) CountUningestedToGraph(ctx context.Context) (int, error) {
	return p.count(ctx, "graphiti_batch_id IS NULL")
}

func (p *Postgres) CountAll(ctx context.Context) (int, error) {
	return p.count(ctx, "TRUE")
}

func (p *Postgres) count(ctx context.Context, where string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", p.qualify("messages"), where)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

func (p *Postgres) FetchUnsummarized(ctx context.Context, limit int) ([]Turn, error) {
	return p.fetch(ctx, "summary_id IS NULL AND length(content) >= 10", limit)
}

func (p *Postgres) FetchUningested(ctx context.Context, limit int) ([]Turn, error) {
	return p.fetch(ctx, "graphiti_batch_id IS NULL", limit)
}

func (p *Postgres) GetSince(ctx context.Context, since time.Time, limit int) ([]Turn, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, created_at, channel, author_name, is_own_utterance, content, session_id, external_id, summary_id, graphiti_batch_id FROM %s WHERE created_at >= $1 ORDER BY id ASC LIMIT $2",
		p.qualify("messages")), since, limit)
	if err != nil {
		return nil, fmt.Errorf("get turns since: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Turn, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, created_at, channel, author_name, is_own_utterance, content, session_id, external_id, summary_id, graphiti_batch_id FROM %s ORDER BY id DESC LIMIT $1",
		p.qualify("messages")), limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (p *Postgres) fetch(ctx context.Context, where string, limit int) ([]Turn, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, created_at, channel, author_name, is_own_utterance, content, session_id, external_id, summary_id, graphiti_batch_id FROM %s WHERE %s ORDER BY id ASC LIMIT $1",
		p.qualify("messages"), where), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.Channel, &t.AuthorName, &t.IsOwnUtterance, &t.Content,
			&t.SessionID, &t.ExternalID, &t.SummaryID, &t.GraphitiBatchID); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimForGraphBatch implements spec.md §4.5's exactly-once invariant with a
// single atomic UPDATE ... WHERE graphiti_batch_id IS NULL ORDER BY id LIMIT
// B_g RETURNING id, wrapped in the same transaction as batch-row creation.
func (p *Postgres) ClaimForGraphBatch(ctx context.Context, channels []string, limit int) (Batch, []Turn, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Batch{}, nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, fmt.Sprintf(
		`UPDATE %s SET graphiti_batch_id = -1
		 WHERE id IN (SELECT id FROM %s WHERE graphiti_batch_id IS NULL ORDER BY id ASC LIMIT $1 FOR UPDATE SKIP LOCKED)
		 RETURNING id, created_at, channel, author_name, is_own_utterance, content, session_id, external_id, summary_id, graphiti_batch_id`,
		p.qualify("messages"), p.qualify("messages")), limit)
	if err != nil {
		return Batch{}, nil, fmt.Errorf("claim turns: %w", err)
	}
	turns, err := scanTurns(rows)
	rows.Close()
	if err != nil {
		return Batch{}, nil, err
	}
	if len(turns) == 0 {
		return Batch{}, nil, nil
	}

	ids := make([]int64, len(turns))
	for i, t := range turns {
		ids[i] = t.ID
	}
	channelsJSON, _ := json.Marshal(channels)
	idsJSON, _ := json.Marshal(ids)
	turnRange := fmt.Sprintf("%d-%d", ids[0], ids[len(ids)-1])

	var batchID int64
	var createdAt time.Time
	err = tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (status, turn_ids, turn_range, channels) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		p.qualify("graphiti_batches")), BatchInFlight, idsJSON, turnRange, channelsJSON,
	).Scan(&batchID, &createdAt)
	if err != nil {
		return Batch{}, nil, fmt.Errorf("create batch: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET graphiti_batch_id = $1 WHERE id = ANY($2)", p.qualify("messages")), batchID, ids); err != nil {
		return Batch{}, nil, fmt.Errorf("assign batch id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Batch{}, nil, fmt.Errorf("commit claim tx: %w", err)
	}

	for i := range turns {
		turns[i].GraphitiBatchID = &batchID
	}
	return Batch{ID: batchID, CreatedAt: createdAt, TurnIDRange: turnRange, TurnIDs: ids, Channels: channels, Status: BatchInFlight}, turns, nil
}

func (p *Postgres) ReleaseFromBatch(ctx context.Context, turnIDs []int64) error {
	if len(turnIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET graphiti_batch_id = NULL WHERE id = ANY($1)", p.qualify("messages")), turnIDs)
	if err != nil {
		return fmt.Errorf("release turns from batch: %w", err)
	}
	return nil
}

func (p *Postgres) ResetIngestionMarkers(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET graphiti_batch_id = NULL", p.qualify("messages"))); err != nil {
		return fmt.Errorf("reset ingestion markers: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", p.qualify("graphiti_batches"))); err != nil {
		return fmt.Errorf("delete batch records: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) RepairIngestionMarkers(ctx context.Context, startID, endID int64) (int, error) {
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET graphiti_batch_id = NULL WHERE id BETWEEN $1 AND $2 AND graphiti_batch_id IS NOT NULL", p.qualify("messages")), startID, endID)
	if err != nil {
		return 0, fmt.Errorf("repair ingestion markers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) CountMarkedInRange(ctx context.Context, startID, endID int64) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE id BETWEEN $1 AND $2 AND graphiti_batch_id IS NOT NULL", p.qualify("messages")),
		startID, endID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count marked in range: %w", err)
	}
	return n, nil
}

func (p *Postgres) CreateAndStoreSummary(ctx context.Context, text string, startID, endID int64, channels []string, t SummaryType) (Summary, error) {
	if endID < startID {
		return Summary{}, ErrInvalidRange
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("begin summary tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var alreadySummarized int
	if err := tx.QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE id BETWEEN $1 AND $2 AND summary_id IS NOT NULL",
		p.qualify("messages")), startID, endID).Scan(&alreadySummarized); err != nil {
		return Summary{}, fmt.Errorf("validate turn range: %w", err)
	}
	if alreadySummarized > 0 {
		return Summary{}, ErrInvalidRange
	}
	var messageCount int
	if err := tx.QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE id BETWEEN $1 AND $2", p.qualify("messages")), startID, endID).Scan(&messageCount); err != nil {
		return Summary{}, fmt.Errorf("count turn range: %w", err)
	}
	if messageCount == 0 {
		return Summary{}, ErrInvalidRange
	}

	channelsJSON, _ := json.Marshal(channels)
	var s Summary
	s.SummaryText, s.StartTurnID, s.EndTurnID, s.MessageCount, s.Channels, s.SummaryType = text, startID, endID, messageCount, channels, t
	if err := tx.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (summary_text, start_message_id, end_message_id, message_count, channels, summary_type)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, p.qualify("message_summaries")),
		text, startID, endID, messageCount, channelsJSON, string(t),
	).Scan(&s.ID, &s.CreatedAt); err != nil {
		return Summary{}, fmt.Errorf("insert summary: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET summary_id = $1 WHERE id BETWEEN $2 AND $3", p.qualify("messages")), s.ID, startID, endID); err != nil {
		return Summary{}, fmt.Errorf("assign summary id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Summary{}, fmt.Errorf("commit summary tx: %w", err)
	}
	return s, nil
}

func scanSummaries(rows pgx.Rows) ([]Summary, error) {
	var out []Summary
	for rows.Next() {
		var s Summary
		var channelsJSON []byte
		var summaryType string
		if err := rows.Scan(&s.ID, &s.SummaryText, &s.StartTurnID, &s.EndTurnID, &s.MessageCount, &channelsJSON, &summaryType, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		_ = json.Unmarshal(channelsJSON, &s.Channels)
		s.SummaryType = SummaryType(summaryType)
		out = append(out, s)
	}
	return out, rows.Err()
}

const summaryColumns = "id, summary_text, start_message_id, end_message_id, message_count, channels, summary_type, created_at"

func (p *Postgres) RecentSummaries(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY id DESC LIMIT $1", summaryColumns, p.qualify("message_summaries")), limit)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (p *Postgres) SearchSummaries(ctx context.Context, query string, limit int) ([]Summary, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE summary_text ILIKE $1 ORDER BY id DESC LIMIT $2", summaryColumns, p.qualify("message_summaries")),
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (p *Postgres) MarkSucceeded(ctx context.Context, id int64) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf("UPDATE %s SET status = $1, error_category = NULL WHERE id = $2", p.qualify("graphiti_batches")), BatchSucceeded, id)
	if err != nil {
		return fmt.Errorf("mark batch succeeded: %w", err)
	}
	return nil
}

func (p *Postgres) MarkFailed(ctx context.Context, id int64, errorCategory string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mark-failed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET status = $1, error_category = $2 WHERE id = $3", p.qualify("graphiti_batches")), BatchFailed, errorCategory, id); err != nil {
		return fmt.Errorf("mark batch failed: %w", err)
	}
	// A failed batch releases its turns so a later tick retries them
	// (spec.md §4.5 state machine: transient_error -> failed, turns revert
	// to uningested).
	if _, err := tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET graphiti_batch_id = NULL WHERE graphiti_batch_id = $1", p.qualify("messages")), id); err != nil {
		return fmt.Errorf("release failed batch turns: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Get(ctx context.Context, id int64) (Batch, error) {
	var b Batch
	var idsJSON, channelsJSON []byte
	var errorCategory *string
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT id, created_at, status, turn_ids, turn_range, channels, error_category FROM %s WHERE id = $1",
		p.qualify("graphiti_batches")), id).Scan(&b.ID, &b.CreatedAt, &b.Status, &idsJSON, &b.TurnIDRange, &channelsJSON, &errorCategory)
	if err == pgx.ErrNoRows {
		return Batch{}, ErrNotFound
	}
	if err != nil {
		return Batch{}, fmt.Errorf("get batch: %w", err)
	}
	_ = json.Unmarshal(idsJSON, &b.TurnIDs)
	_ = json.Unmarshal(channelsJSON, &b.Channels)
	if errorCategory != nil {
		b.ErrorCategory = *errorCategory
	}
	return b, nil
}

func (p *Postgres) Stats(ctx context.Context) (GraphitiStats, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT status, count(*) FROM %s GROUP BY status", p.qualify("graphiti_batches")))
	if err != nil {
		return GraphitiStats{}, fmt.Errorf("graphiti stats: %w", err)
	}
	defer rows.Close()
	var s GraphitiStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return GraphitiStats{}, fmt.Errorf("scan graphiti stats: %w", err)
		}
		switch BatchStatus(status) {
		case BatchPending:
			s.Pending = n
		case BatchInFlight:
			s.InFlight = n
		case BatchSucceeded:
			s.Succeeded = n
		case BatchFailed:
			s.Failed = n
		}
	}
	return s, rows.Err()
}

func (p *Postgres) Log(ctx context.Context, e TraceEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data := e.EventData
	if len(data) == 0 {
		data = []byte("{}")
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (session_id, daemon_type, timestamp, event_type, event_data, duration_ms)
		 VALUES ($1,$2,$3,$4,$5,$6)`, p.qualify("daemon_traces")),
		e.SessionID, e.DaemonType, e.Timestamp, e.EventType, data, e.DurationMS)
	if err != nil {
		return fmt.Errorf("log trace event: %w", err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)
