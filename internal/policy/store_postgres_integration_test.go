//go:build integration

package policy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "callwatch/pkg/domain"
	"callwatch/pkg/testutil/containers"
)

// The attention_policies table is owned by the host application's policy
// management API; the engine only reads it. The test creates the table the
// way that application defines it.
const policiesSchema = `
CREATE TABLE IF NOT EXISTS attention_policies (
    id              uuid PRIMARY KEY,
    organization_id uuid NOT NULL,
    name            text NOT NULL,
    policy_type     text NOT NULL,
    policy_config   jsonb NOT NULL,
    priority        integer NOT NULL DEFAULT 100,
    is_enabled      boolean NOT NULL DEFAULT TRUE,
    created_by      uuid,
    created_at      timestamptz NOT NULL DEFAULT now(),
    updated_at      timestamptz NOT NULL DEFAULT now()
)`

func TestPostgresStoreListEnabled(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	_, err := pg.DB.ExecContext(ctx, policiesSchema)
	require.NoError(t, err)

	store := NewPostgres(pg.DB, slog.New(slog.NewTextHandler(io.Discard, nil)))
	orgID := id.NewOrgID()

	insert := func(name, typ, config string, priority int, enabled bool) uuid.UUID {
		policyID := uuid.New()
		_, err := pg.DB.ExecContext(ctx, `
			INSERT INTO attention_policies (id, organization_id, name, policy_type, policy_config, priority, is_enabled, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			policyID, uuid.UUID(orgID), name, typ, config, priority, enabled, time.Now().UTC())
		require.NoError(t, err)
		return policyID
	}

	threshold := insert("escalate severe", "threshold", `{"severity_minimum": 4}`, 2, true)
	quiet := insert("overnight quiet", "quiet_hours", `{"start_hour": 22, "end_hour": 6, "hard_mute": true}`, 1, true)
	insert("paused", "threshold", `{"severity_minimum": 1}`, 0, false)
	insert("broken config", "threshold", `{"severity_minimum": -5}`, 0, true)
	insert("unknown type", "regex_match", `{}`, 0, true)

	policies, err := store.ListEnabled(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, policies, 2, "disabled and unparseable policies are excluded")

	assert.Equal(t, id.PolicyID(quiet), policies[0].ID)
	assert.Equal(t, TypeQuietHours, policies[0].Type)
	require.NotNil(t, policies[0].Config.QuietHours)
	assert.True(t, policies[0].Config.QuietHours.HardMute)

	assert.Equal(t, id.PolicyID(threshold), policies[1].ID)
	require.NotNil(t, policies[1].Config.Threshold)
	assert.Equal(t, 4.0, policies[1].Config.Threshold.SeverityMinimum)

	other, err := store.ListEnabled(ctx, id.NewOrgID())
	require.NoError(t, err)
	assert.Empty(t, other)
}
