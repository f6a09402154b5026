package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	id "callwatch/pkg/domain"
)

// PostgresStore reads policies from the host application's attention_policies
// table. Read-only on purpose: policy CRUD belongs to the management API.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) ListEnabled(ctx context.Context, orgID id.OrgID) ([]*Policy, error) {
	query := `
		SELECT id, organization_id, name, policy_type, policy_config, priority, is_enabled, created_by, created_at, updated_at
		FROM attention_policies
		WHERE organization_id = $1 AND is_enabled = TRUE
		ORDER BY priority, id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list enabled policies: %w", err)
	}
	defer rows.Close()

	var out []*Policy
	for rows.Next() {
		var (
			p         Policy
			policyID  uuid.UUID
			orgUUID   uuid.UUID
			typeName  string
			rawConfig []byte
			createdBy uuid.NullUUID
		)
		if err := rows.Scan(&policyID, &orgUUID, &p.Name, &typeName, &rawConfig,
			&p.Priority, &p.IsEnabled, &createdBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		p.ID = id.PolicyID(policyID)
		p.OrgID = id.OrgID(orgUUID)
		if createdBy.Valid {
			p.CreatedBy = id.UserID(createdBy.UUID)
		}

		p.Type, err = ParseType(typeName)
		if err == nil {
			p.Config, err = ParseConfig(p.Type, json.RawMessage(rawConfig))
		}
		if err != nil {
			// A policy that fails to parse is skipped, not fatal: one bad
			// config row must not block evaluation of the rest.
			s.logger.WarnContext(ctx, "skipping unparseable policy",
				"policy_id", p.ID,
				"org_id", p.OrgID,
				"error", err,
			)
			continue
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
