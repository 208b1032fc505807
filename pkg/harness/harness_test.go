package harness

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/YinWang3026/dynago/pkg/node"
)

func calmTimers() node.Timers {
	return node.Timers{
		Client:      2 * time.Second,
		Redirect:    80 * time.Millisecond,
		Request:     80 * time.Millisecond,
		HealthCheck: 100 * time.Millisecond,
		MerkleSync:  150 * time.Millisecond,
	}
}

func TestMeasureCleanCluster(t *testing.T) {
	res, err := Measure(Params{
		Nodes:      4,
		N:          3,
		R:          2,
		W:          2,
		Timers:     calmTimers(),
		Operations: 60,
		Keys:       8,
		PutRatio:   0.5,
		Seed:       7,
	})
	require.NoError(t, err)
	require.Equal(t, 60, res.Operations)
	require.NotEmpty(t, res.RunID)

	// a healthy cluster with no chaos answers everything, consistently
	require.Equal(t, 1.0, res.Availability)
	require.Equal(t, 0.0, res.StaleReads)
}

func TestMeasureSurvivesCrashSchedule(t *testing.T) {
	res, err := Measure(Params{
		Nodes:         5,
		N:             3,
		R:             2,
		W:             2,
		Timers:        calmTimers(),
		Operations:    80,
		Keys:          8,
		PutRatio:      0.5,
		Seed:          11,
		CrashInterval: 25,
		DownFor:       400 * time.Millisecond,
	})
	require.NoError(t, err)
	// sloppy quorums keep most requests served through the crashes
	require.Greater(t, res.Availability, 0.5)
}

func TestNonceRegistryRejectsDuplicates(t *testing.T) {
	r := newNonceRegistry(rand.New(rand.NewSource(1)))
	require.NoError(t, r.claim(42))
	require.ErrorIs(t, r.claim(42), ErrDuplicateNonce)

	for i := 0; i < 1000; i++ {
		nonce, err := r.next()
		require.NoError(t, err)
		require.GreaterOrEqual(t, nonce, uint64(1))
		require.LessOrEqual(t, nonce, uint64(1_000_000_000))
	}
}

func TestMeasureRejectsEmptyCluster(t *testing.T) {
	_, err := Measure(Params{Nodes: 0, Operations: 1})
	require.Error(t, err)
}
