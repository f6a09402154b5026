package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "callwatch/pkg/domain"
)

func TestMemoryStoreListEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	orgID := id.NewOrgID()

	enabled := &Policy{
		ID:        id.NewPolicyID(),
		OrgID:     orgID,
		Name:      "escalate severe",
		Type:      TypeThreshold,
		Config:    Config{Threshold: &ThresholdConfig{SeverityMinimum: 4}},
		Priority:  2,
		IsEnabled: true,
	}
	first := &Policy{
		ID:        id.NewPolicyID(),
		OrgID:     orgID,
		Name:      "overnight quiet",
		Type:      TypeQuietHours,
		Config:    Config{QuietHours: &QuietHoursConfig{StartHour: 22, EndHour: 6}},
		Priority:  1,
		IsEnabled: true,
	}
	disabled := &Policy{
		ID:        id.NewPolicyID(),
		OrgID:     orgID,
		Name:      "paused",
		Type:      TypeThreshold,
		Config:    Config{Threshold: &ThresholdConfig{SeverityMinimum: 1}},
		Priority:  0,
		IsEnabled: false,
	}
	foreign := &Policy{
		ID:        id.NewPolicyID(),
		OrgID:     id.NewOrgID(),
		Name:      "other org",
		Type:      TypeThreshold,
		Config:    Config{Threshold: &ThresholdConfig{SeverityMinimum: 1}},
		Priority:  0,
		IsEnabled: true,
	}
	for _, p := range []*Policy{enabled, first, disabled, foreign} {
		store.Put(p)
	}

	policies, err := store.ListEnabled(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, first.ID, policies[0].ID)
	assert.Equal(t, enabled.ID, policies[1].ID)
}

func TestMemoryStorePutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	orgID := id.NewOrgID()

	p := &Policy{
		ID:        id.NewPolicyID(),
		OrgID:     orgID,
		Name:      "v1",
		Type:      TypeThreshold,
		Config:    Config{Threshold: &ThresholdConfig{SeverityMinimum: 4}},
		IsEnabled: true,
	}
	store.Put(p)

	p.Name = "v2"
	p.Config.Threshold.SeverityMinimum = 2
	store.Put(p)

	policies, err := store.ListEnabled(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "v2", policies[0].Name)
	assert.Equal(t, 2.0, policies[0].Config.Threshold.SeverityMinimum)
}
