package audit

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse governance_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the governance_events table.
type EventRow struct {
	EventID     string
	EventType   string
	Timestamp   time.Time
	TenantID    string
	ActorID     string
	ActionID    string
	ActionType  string
	ImpactLevel string
	Stage       string
	DryRun      uint8
	MetricName  string
	Severity    string
	MetricValue float64
	Threshold   float64
	Reason      string
	Source      string
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	TenantID  string
	EventType *string
	ActionID  *string
	Source    *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// ListEvents returns paginated, filtered governance events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"tenant_id = @tenant_id"}
	args := []any{
		clickhouse.Named("tenant_id", params.TenantID),
	}

	if params.EventType != nil {
		conditions = append(conditions, "event_type = @event_type")
		args = append(args, clickhouse.Named("event_type", *params.EventType))
	}
	if params.ActionID != nil {
		conditions = append(conditions, "action_id = @action_id")
		args = append(args, clickhouse.Named("action_id", *params.ActionID))
	}
	if params.Source != nil {
		conditions = append(conditions, "source = @source")
		args = append(args, clickhouse.Named("source", *params.Source))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM governance_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT event_id, event_type, timestamp, "+
			"tenant_id, actor_id, action_id, action_type, impact_level, "+
			"stage, dry_run, "+
			"metric_name, severity, metric_value, threshold, "+
			"reason, source "+
			"FROM governance_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.EventID, &e.EventType, &e.Timestamp,
			&e.TenantID, &e.ActorID, &e.ActionID, &e.ActionType, &e.ImpactLevel,
			&e.Stage, &e.DryRun,
			&e.MetricName, &e.Severity, &e.MetricValue, &e.Threshold,
			&e.Reason, &e.Source,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}
