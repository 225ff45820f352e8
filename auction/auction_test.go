package auction

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/disttree/comm"
)

func runAuction(t *testing.T, size int, affinity func(rank int) []float64) []int {
	t.Helper()

	var mu sync.Mutex
	won := make([]int, size)

	err := comm.Spawn(context.Background(), size, func(ctx context.Context, g comm.Group) error {
		leaf, err := Assign(ctx, g, affinity(g.Rank()), 1/float64(size))
		if err != nil {
			return err
		}
		mu.Lock()
		won[g.Rank()] = leaf
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return won
}

func TestDistinctWinners(t *testing.T) {
	// Every rank prefers leaf 0; the auction must still spread them out.
	won := runAuction(t, 4, func(rank int) []float64 {
		return []float64{10, 3, 2, 1}
	})

	seen := make(map[int]bool)
	for rank, leaf := range won {
		assert.False(t, seen[leaf], "leaf %d won twice (rank %d)", leaf, rank)
		seen[leaf] = true
		assert.GreaterOrEqual(t, leaf, 0)
		assert.Less(t, leaf, 4)
	}
}

func TestStrongPreferencesRespected(t *testing.T) {
	// Each rank values a different leaf far above the rest; the obvious
	// matching should come out.
	won := runAuction(t, 3, func(rank int) []float64 {
		a := []float64{1, 1, 1}
		a[rank] = 100
		return a
	})

	for rank, leaf := range won {
		assert.Equal(t, rank, leaf)
	}
}

func TestMoreLeavesThanRanks(t *testing.T) {
	won := runAuction(t, 2, func(rank int) []float64 {
		return []float64{5, 4, 3, 2, 1}
	})

	assert.NotEqual(t, won[0], won[1])
	for _, leaf := range won {
		assert.Less(t, leaf, 5)
	}
}

func TestSingleRankShortCircuit(t *testing.T) {
	err := comm.Spawn(context.Background(), 1, func(ctx context.Context, g comm.Group) error {
		leaf, err := Assign(ctx, g, []float64{7}, 1)
		if err != nil {
			return err
		}
		if leaf != 0 {
			return fmt.Errorf("got leaf %d", leaf)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRejectsBadCandidateSets(t *testing.T) {
	err := comm.Spawn(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		_, err := Assign(ctx, g, []float64{1}, 0.5)
		if err == nil {
			return fmt.Errorf("accepted fewer leaves than ranks")
		}
		return nil
	})
	require.NoError(t, err)

	hub, err := comm.NewHub(1)
	require.NoError(t, err)
	g, err := hub.Join(0)
	require.NoError(t, err)
	_, err = Assign(context.Background(), g, nil, 1)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
}
