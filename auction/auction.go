// Package auction assigns each rank of a group a distinct leaf of the
// top-level sample tree. Every rank bids for its most valuable leaf;
// the rounds are replicated, so each rank resolves the same winners
// from the same all-gathered bids and the outcome needs no referee.
package auction

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/disttree/comm"
)

// ErrEmptyCandidateSet is returned when there are no leaves to bid on.
var ErrEmptyCandidateSet = errors.New("auction: empty candidate set")

const bidRecordSize = 4 + 4 + 8 // object, bidder, price

type bid struct {
	object int
	price  float64
}

// Assign runs the auction and returns the leaf index this rank won.
// affinity[j] is the value this rank places on leaf j; it must have one
// entry per leaf and at least g.Size() entries. eps is the minimum bid
// increment; the protocol uses 1/P.
//
// Prices and winners evolve identically on every rank. Ties on price
// break toward the lowest bidder rank, so resolution is deterministic.
func Assign(ctx context.Context, g comm.Group, affinity []float64, eps float64) (int, error) {
	nObjects := len(affinity)
	if nObjects == 0 {
		return 0, ErrEmptyCandidateSet
	}
	if nObjects < g.Size() {
		return 0, fmt.Errorf("auction: %d leaves for %d ranks", nObjects, g.Size())
	}
	if g.Size() == 1 {
		return 0, nil
	}

	me := g.Rank()
	prices := make([]float64, nObjects)
	ownerOf := make([]int, nObjects) // object -> winning rank, -1 when unclaimed
	objectOf := make([]int, g.Size())
	for j := range ownerOf {
		ownerOf[j] = -1
	}
	for r := range objectOf {
		objectOf[r] = -1
	}

	for {
		myBid := bid{object: -1}
		if objectOf[me] < 0 {
			myBid = bestBid(affinity, prices, eps)
		}

		parts, err := g.AllGather(ctx, encodeBid(me, myBid))
		if err != nil {
			return 0, err
		}

		anyBid := false
		// Highest price wins each object; on equal price the lowest
		// bidder rank does. Iterating bids in rank order and requiring
		// a strictly higher price to displace gives exactly that.
		winner := make(map[int]bid)
		winnerRank := make(map[int]int)
		for r := 0; r < g.Size(); r++ {
			bidder, b, err := decodeBid(parts[r])
			if err != nil {
				return 0, err
			}
			if b.object < 0 {
				continue
			}
			anyBid = true
			if prev, ok := winner[b.object]; !ok || b.price > prev.price {
				winner[b.object] = b
				winnerRank[b.object] = bidder
			}
		}
		if !anyBid {
			break
		}

		for obj, b := range winner {
			r := winnerRank[obj]
			if prev := ownerOf[obj]; prev >= 0 {
				objectOf[prev] = -1
			}
			if old := objectOf[r]; old >= 0 {
				ownerOf[old] = -1
			}
			ownerOf[obj] = r
			objectOf[r] = obj
			prices[obj] = b.price
		}
	}

	if objectOf[me] < 0 {
		return 0, errors.New("auction: terminated without full assignment")
	}
	return objectOf[me], nil
}

// bestBid picks the object with the highest net value and prices it at
// the classic increment: net value lead over the runner-up plus eps.
func bestBid(affinity, prices []float64, eps float64) bid {
	best, second := math.Inf(-1), math.Inf(-1)
	bestObj := -1
	for j := range affinity {
		v := affinity[j] - prices[j]
		if v > best {
			second = best
			best = v
			bestObj = j
		} else if v > second {
			second = v
		}
	}
	if math.IsInf(second, -1) {
		second = best
	}
	return bid{object: bestObj, price: prices[bestObj] + best - second + eps}
}

func encodeBid(bidder int, b bid) []byte {
	buf := make([]byte, bidRecordSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(b.object)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(bidder)))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(b.price))
	return buf
}

func decodeBid(p []byte) (int, bid, error) {
	if len(p) != bidRecordSize {
		return 0, bid{}, fmt.Errorf("auction: bid record has %d bytes", len(p))
	}
	return int(int32(binary.LittleEndian.Uint32(p[4:]))), bid{
		object: int(int32(binary.LittleEndian.Uint32(p[0:]))),
		price:  math.Float64frombits(binary.LittleEndian.Uint64(p[8:])),
	}, nil
}
