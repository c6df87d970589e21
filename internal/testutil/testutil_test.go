package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDB_SeedConnection(t *testing.T) {
	db := SetupTestDB(t)
	seeded := db.SeedConnection("ops@example.com", model.RegionUK, "1000.refresh")
	assert.Equal(t, "eu", seeded.DataCenter)

	got, err := db.Storage.GetConnection(context.Background(), "ops@example.com", model.RegionUK)
	require.NoError(t, err)
	plain, err := db.Sealer.Unseal(got.RefreshTokenSealed)
	require.NoError(t, err)
	assert.Equal(t, "1000.refresh", plain)
}

func TestFixturesNormalize(t *testing.T) {
	p, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		payload model.RawPayload
		want    pipeline.Outcome
		name    string
	}{
		{name: "json", payload: JSONPayload(TrialBalanceJSON), want: pipeline.OutcomeOK},
		{name: "error envelope", payload: JSONPayload(ErrorEnvelopeJSON), want: pipeline.OutcomeUpstreamError},
		{name: "spreadsheet", payload: SpreadsheetPayload(t, []any{"Cash", "1000", "1250", ""}), want: pipeline.OutcomeOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Process(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}
