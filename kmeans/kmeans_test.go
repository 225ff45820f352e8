package kmeans

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/disttree/comm"
	"github.com/hupe1980/disttree/distance"
	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
)

func fillTable(t *testing.T, rank int, rows [][]float32) *table.Table {
	t.Helper()

	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	} else {
		dim = 2
	}
	tbl, err := table.New(table.NewHeapAllocator(), dim, len(rows))
	require.NoError(t, err)
	for i, row := range rows {
		tbl.SetRow(i, row)
		tbl.SetID(i, model.PointID{Rank: int32(rank), Index: int32(i)})
	}
	return tbl
}

func TestSeparatedClustersConverge(t *testing.T) {
	// Two ranks seeded near two well-separated clusters; every point
	// should converge onto the rank whose seed sits in its cluster.
	shards := [][][]float32{
		{{0, 0}, {1, 0}, {0, 1}, {100, 101}},
		{{100, 100}, {101, 100}, {100, 99}, {1, 1}},
	}
	seeds := [][]float32{{0.5, 0.5}, {100.5, 100}}

	var mu sync.Mutex
	results := make([]*Result, 2)

	err := comm.Spawn(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		tbl := fillTable(t, g.Rank(), shards[g.Rank()])
		res, err := Compute(ctx, g, distance.MetricL2, tbl, 1, DefaultIterations, seeds[g.Rank()])
		if err != nil {
			return err
		}
		mu.Lock()
		results[g.Rank()] = res
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	// The stray points cross over.
	assert.Equal(t, []int32{0, 0, 0, 1}, results[0].Assignments)
	assert.Equal(t, []int32{1, 1, 1, 0}, results[1].Assignments)
	assert.Equal(t, 4, results[0].TotalOwned)
	assert.Equal(t, 4, results[1].TotalOwned)
}

func TestOwnedCountsConserveTotal(t *testing.T) {
	shards := [][][]float32{
		{{0, 0}, {1, 1}, {2, 2}},
		{{10, 10}, {11, 11}},
		{{20, 20}, {21, 21}, {22, 22}, {23, 23}},
	}

	var mu sync.Mutex
	owned := make([]int, 3)

	err := comm.Spawn(context.Background(), 3, func(ctx context.Context, g comm.Group) error {
		tbl := fillTable(t, g.Rank(), shards[g.Rank()])
		seed := make([]float32, 2)
		copy(seed, shards[g.Rank()][0])
		res, err := Compute(ctx, g, distance.MetricL2, tbl, 2, 5, seed)
		if err != nil {
			return err
		}
		mu.Lock()
		owned[g.Rank()] = res.TotalOwned
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	total := 0
	for _, c := range owned {
		total += c
	}
	assert.Equal(t, 9, total)
}

func TestRadiusBoundsMovement(t *testing.T) {
	// Rank 0's points sit on rank 2's centroid, but radius 1 keeps them
	// within ranks 0..1.
	shards := [][][]float32{
		{{20, 20}, {20, 20}},
		{{10, 10}},
		{{20, 20}},
	}
	seeds := [][]float32{{0, 0}, {10, 10}, {20, 20}}

	var mu sync.Mutex
	var rank0 []int32

	err := comm.Spawn(context.Background(), 3, func(ctx context.Context, g comm.Group) error {
		tbl := fillTable(t, g.Rank(), shards[g.Rank()])
		res, err := Compute(ctx, g, distance.MetricL2, tbl, 1, 1, seeds[g.Rank()])
		if err != nil {
			return err
		}
		if g.Rank() == 0 {
			mu.Lock()
			rank0 = res.Assignments
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, err)

	for _, dest := range rank0 {
		assert.LessOrEqual(t, dest, int32(1))
	}
}

func TestEmptyShardParticipates(t *testing.T) {
	shards := [][][]float32{
		{{0, 0}, {5, 5}},
		{},
	}
	seeds := [][]float32{{0, 0}, {5, 5}}

	err := comm.Spawn(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		tbl := fillTable(t, g.Rank(), shards[g.Rank()])
		res, err := Compute(ctx, g, distance.MetricL2, tbl, 1, 3, seeds[g.Rank()])
		if err != nil {
			return err
		}
		if len(res.Assignments) != len(shards[g.Rank()]) {
			return fmt.Errorf("rank %d: %d assignments", g.Rank(), len(res.Assignments))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRejectsBadArguments(t *testing.T) {
	hub, err := comm.NewHub(1)
	require.NoError(t, err)
	g, err := hub.Join(0)
	require.NoError(t, err)

	tbl := fillTable(t, 0, [][]float32{{1, 2}})
	ctx := context.Background()

	_, err = Compute(ctx, g, distance.MetricL2, tbl, 1, 3, []float32{1})
	assert.Error(t, err)
	_, err = Compute(ctx, g, distance.MetricL2, tbl, -1, 3, []float32{1, 2})
	assert.Error(t, err)
	_, err = Compute(ctx, g, distance.MetricL2, tbl, 1, 0, []float32{1, 2})
	assert.Error(t, err)
}
