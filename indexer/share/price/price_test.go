package price

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"2010-07-18": 0.09,
		"2010-07-17": 0.05,
		"2010-07-21": 0.08
	}`), 0644))

	p, err := Load(path)
	require.NoError(t, err)

	at := func(s string) common.Dollars {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return p.Price(0, ts)
	}
	assert.Equal(t, common.Dollars(0), at("2010-07-16T23:59:59Z"))
	assert.Equal(t, common.Dollars(0.05), at("2010-07-17T00:00:00Z"))
	assert.Equal(t, common.Dollars(0.09), at("2010-07-18T12:00:00Z"))
	// Gaps take the previous close.
	assert.Equal(t, common.Dollars(0.09), at("2010-07-20T12:00:00Z"))
	assert.Equal(t, common.Dollars(0.08), at("2024-01-01T00:00:00Z"))
	// The UTC day decides, not the local one.
	assert.Equal(t, common.Dollars(0.05), at("2010-07-18T01:00:00+02:00"))
}

func TestLoadRejectsBadTable(t *testing.T) {
	_, err := New(map[string]float64{"18/07/2010": 1})
	assert.Error(t, err)
	_, err = New(map[string]float64{"2010-07-18": -1})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2]`), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestUnpriced(t *testing.T) {
	assert.Zero(t, Unpriced{}.Price(100, time.Now()))
}
