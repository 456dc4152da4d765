package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierParseAndString(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"memory", TierMemory, false},
		{"Disk", TierDisk, false},
		{" network ", TierNetwork, false},
		{"remote", TierNetwork, false},
		{"tape", TierMemory, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "disk", TierDisk.String())
	assert.False(t, Tier(7).Valid())
}

func TestTierJSON(t *testing.T) {
	rec := Recommendation{ShouldCache: true, Level: TierDisk, Reason: "x"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"disk"`)

	var back Recommendation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, TierDisk, back.Level)
	assert.Nil(t, back.TTL)
}

func TestStrategyValidate(t *testing.T) {
	assert.NoError(t, LRU(10).Validate())
	assert.NoError(t, LFU(0).Validate())
	assert.NoError(t, TimeBased(time.Second).Validate())
	assert.NoError(t, Hybrid(5, time.Minute).Validate())

	assert.Error(t, FIFO(-1).Validate())
	assert.Error(t, TimeBased(0).Validate())
	assert.Error(t, Hybrid(5, 0).Validate())
	assert.Error(t, Strategy{Kind: "random"}.Validate())
}

func TestStrategyHasTTL(t *testing.T) {
	assert.True(t, TimeBased(time.Second).HasTTL())
	assert.True(t, Hybrid(1, time.Second).HasTTL())
	assert.False(t, LRU(1).HasTTL())
	assert.False(t, Strategy{Kind: StrategyLRU, TTL: time.Second}.HasTTL())
}

func TestEntryTouch(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Entry{Key: "k", CreatedAt: created, LastAccessAt: created, AccessCount: 1}

	e.Touch(created.Add(time.Minute))
	assert.Equal(t, int64(2), e.AccessCount)
	assert.Equal(t, time.Minute, e.Idle(created.Add(2*time.Minute)))
	assert.Equal(t, 2*time.Minute, e.Age(created.Add(2*time.Minute)))

	// Clock skew never moves the access time backwards.
	e.Touch(created)
	assert.Equal(t, created.Add(time.Minute), e.LastAccessAt)
}
