package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"callwatch/internal/attention/models"
	id "callwatch/pkg/domain"
	"callwatch/pkg/platform/sentinel"
)

// PostgresLedger persists the three record families in PostgreSQL using
// INSERT and SELECT statements only. The schema (schema.sql) revokes UPDATE
// and DELETE from the service role and installs rejection triggers, so the
// append-only invariant holds even for code that bypasses this type.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) AppendEvent(ctx context.Context, event *models.AttentionEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	refs, err := json.Marshal(event.InputRefs)
	if err != nil {
		return fmt.Errorf("marshal event input refs: %w", err)
	}
	query := `
		INSERT INTO attention_events
			(id, organization_id, event_type, source_table, source_id, occurred_at, payload, input_refs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = l.db.ExecContext(ctx, query,
		uuid.UUID(event.ID), uuid.UUID(event.OrgID), event.EventType,
		event.SourceTable, event.SourceID, event.OccurredAt,
		payload, refs, event.CreatedAt,
	)
	if err != nil {
		return translatePQ("append event", err)
	}
	return nil
}

func (l *PostgresLedger) GetEvent(ctx context.Context, orgID id.OrgID, eventID id.EventID) (*models.AttentionEvent, error) {
	query := `
		SELECT id, organization_id, event_type, source_table, source_id, occurred_at, payload, input_refs, created_at
		FROM attention_events
		WHERE id = $1 AND organization_id = $2
	`
	row := l.db.QueryRowContext(ctx, query, uuid.UUID(eventID), uuid.UUID(orgID))
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (l *PostgresLedger) QueryEvents(ctx context.Context, filter EventFilter) ([]*models.AttentionEvent, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.OrgID.IsNil() {
		add("organization_id = $%d", uuid.UUID(filter.OrgID))
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if filter.SourceTable != "" {
		add("source_table = $%d", filter.SourceTable)
	}
	if filter.SourceID != "" {
		add("source_id = $%d", filter.SourceID)
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at < $%d", filter.To)
	}

	query := `
		SELECT id, organization_id, event_type, source_table, source_id, occurred_at, payload, input_refs, created_at
		FROM attention_events
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*models.AttentionEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) AppendDecision(ctx context.Context, decision *models.AttentionDecision) error {
	refs, err := json.Marshal(decision.InputRefs)
	if err != nil {
		return fmt.Errorf("marshal decision input refs: %w", err)
	}
	var policyID any
	if decision.PolicyID != nil {
		policyID = uuid.UUID(*decision.PolicyID)
	}
	var producedByUser any
	if decision.Producer.Kind == id.ProducedByHuman {
		producedByUser = uuid.UUID(decision.Producer.UserID)
	}
	var producedByModel any
	if decision.Producer.Model != "" {
		producedByModel = decision.Producer.Model
	}
	query := `
		INSERT INTO attention_decisions
			(id, attention_event_id, organization_id, decision, reason, policy_id, confidence,
			 produced_by, produced_by_user_id, produced_by_model, input_refs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = l.db.ExecContext(ctx, query,
		uuid.UUID(decision.ID), uuid.UUID(decision.EventID), uuid.UUID(decision.OrgID),
		string(decision.Kind), decision.Reason, policyID, decision.Confidence,
		string(decision.Producer.Kind), producedByUser, producedByModel, refs, decision.CreatedAt,
	)
	if err != nil {
		return translatePQ("append decision", err)
	}
	return nil
}

func (l *PostgresLedger) QueryDecisions(ctx context.Context, filter DecisionFilter) ([]*models.AttentionDecision, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.OrgID.IsNil() {
		add("organization_id = $%d", uuid.UUID(filter.OrgID))
	}
	if !filter.EventID.IsNil() {
		add("attention_event_id = $%d", uuid.UUID(filter.EventID))
	}
	if filter.Kind != "" {
		add("decision = $%d", string(filter.Kind))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	query := decisionColumns + " FROM attention_decisions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.AttentionDecision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, decision)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) CurrentDecision(ctx context.Context, orgID id.OrgID, eventID id.EventID) (*models.AttentionDecision, error) {
	query := decisionColumns + `
		FROM attention_decisions
		WHERE organization_id = $1 AND attention_event_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	row := l.db.QueryRowContext(ctx, query, uuid.UUID(orgID), uuid.UUID(eventID))
	decision, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("current decision: %w", err)
	}
	return decision, nil
}

func (l *PostgresLedger) AppendDigest(ctx context.Context, digest *models.Digest) error {
	query := `
		INSERT INTO digests
			(id, organization_id, digest_type, period_start, period_end, total_events, summary_text, generated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := l.db.ExecContext(ctx, query,
		uuid.UUID(digest.ID), uuid.UUID(digest.OrgID), string(digest.Type),
		digest.PeriodStart, digest.PeriodEnd, digest.TotalEvents,
		digest.SummaryText, digest.GeneratedBy, digest.CreatedAt,
	)
	if err != nil {
		return translatePQ("append digest", err)
	}
	return nil
}

func (l *PostgresLedger) QueryDigests(ctx context.Context, filter DigestFilter) ([]*models.Digest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.OrgID.IsNil() {
		add("organization_id = $%d", uuid.UUID(filter.OrgID))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	query := `
		SELECT id, organization_id, digest_type, period_start, period_end, total_events, summary_text, generated_by, created_at
		FROM digests
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer rows.Close()

	var out []*models.Digest
	for rows.Next() {
		var (
			digest     models.Digest
			digestID   uuid.UUID
			orgUUID    uuid.UUID
			digestType string
		)
		if err := rows.Scan(&digestID, &orgUUID, &digestType, &digest.PeriodStart, &digest.PeriodEnd,
			&digest.TotalEvents, &digest.SummaryText, &digest.GeneratedBy, &digest.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		digest.ID = id.DigestID(digestID)
		digest.OrgID = id.OrgID(orgUUID)
		digest.Type = models.DigestType(digestType)
		out = append(out, &digest)
	}
	return out, rows.Err()
}

const decisionColumns = `
	SELECT id, attention_event_id, organization_id, decision, reason, policy_id, confidence,
	       produced_by, produced_by_user_id, produced_by_model, input_refs, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.AttentionEvent, error) {
	var (
		event    models.AttentionEvent
		eventID  uuid.UUID
		orgUUID  uuid.UUID
		payload  []byte
		refBytes []byte
	)
	if err := row.Scan(&eventID, &orgUUID, &event.EventType, &event.SourceTable, &event.SourceID,
		&event.OccurredAt, &payload, &refBytes, &event.CreatedAt); err != nil {
		return nil, err
	}
	event.ID = id.EventID(eventID)
	event.OrgID = id.OrgID(orgUUID)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if err := json.Unmarshal(refBytes, &event.InputRefs); err != nil {
		return nil, fmt.Errorf("unmarshal input refs: %w", err)
	}
	return &event, nil
}

func scanDecision(row rowScanner) (*models.AttentionDecision, error) {
	var (
		decision     models.AttentionDecision
		decisionID   uuid.UUID
		eventID      uuid.UUID
		orgUUID      uuid.UUID
		kind         string
		policyID     uuid.NullUUID
		producedBy   string
		producedUser uuid.NullUUID
		model        sql.NullString
		refBytes     []byte
	)
	if err := row.Scan(&decisionID, &eventID, &orgUUID, &kind, &decision.Reason, &policyID,
		&decision.Confidence, &producedBy, &producedUser, &model, &refBytes, &decision.CreatedAt); err != nil {
		return nil, err
	}
	decision.ID = id.DecisionID(decisionID)
	decision.EventID = id.EventID(eventID)
	decision.OrgID = id.OrgID(orgUUID)
	decision.Kind = models.DecisionKind(kind)
	if policyID.Valid {
		pid := id.PolicyID(policyID.UUID)
		decision.PolicyID = &pid
	}
	actor := id.Actor{Kind: id.ProducedBy(producedBy)}
	if producedUser.Valid {
		actor.UserID = id.UserID(producedUser.UUID)
	}
	if model.Valid {
		actor.Model = model.String
	}
	decision.Producer = actor
	if err := json.Unmarshal(refBytes, &decision.InputRefs); err != nil {
		return nil, fmt.Errorf("unmarshal input refs: %w", err)
	}
	return &decision, nil
}

// translatePQ maps trigger-raised append-only rejections and privilege
// errors onto the sentinel so callers see one consistent violation error.
func translatePQ(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505 unique_violation: an insert trying to replace an existing row.
		// 42501 insufficient_privilege / P0001 raise_exception: the schema's
		// second enforcement layer rejecting a mutation.
		switch pqErr.Code {
		case "23505", "42501", "P0001":
			return sentinel.ErrAppendOnly
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
