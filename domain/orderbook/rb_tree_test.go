package orderbook

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func px(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRBTreeInsertFindDelete(t *testing.T) {
	tree := NewRBTree()
	pl1 := tree.UpsertLevel(px("100"))
	if pl1 == nil {
		t.Fatal("UpsertLevel failed")
	}
	if pl2 := tree.FindLevel(px("100")); pl2 != pl1 {
		t.Error("FindLevel did not return same PriceLevel")
	}

	tree.UpsertLevel(px("200"))
	if !tree.MinLevel().Price.Equal(px("100")) {
		t.Error("expected min=100")
	}
	if !tree.MaxLevel().Price.Equal(px("200")) {
		t.Error("expected max=200")
	}

	if !tree.DeleteLevel(px("100")) {
		t.Error("DeleteLevel failed")
	}
	if tree.FindLevel(px("100")) != nil {
		t.Error("expected level 100 to be gone")
	}
	if tree.Size() != 1 {
		t.Errorf("expected size 1, got %d", tree.Size())
	}
}

// --- Edge Cases ---

func TestDeleteNonExistentLevel(t *testing.T) {
	tree := NewRBTree()
	if tree.DeleteLevel(px("123")) {
		t.Error("expected false when deleting non-existent level")
	}
}

func TestEmptyTreeMinMax(t *testing.T) {
	tree := NewRBTree()
	if tree.MinLevel() != nil || tree.MaxLevel() != nil {
		t.Error("expected nil for min/max on empty tree")
	}
}

func TestUpsertEquivalentScales(t *testing.T) {
	tree := NewRBTree()
	pl1 := tree.UpsertLevel(px("10.0"))
	pl2 := tree.UpsertLevel(px("10.00"))
	if pl1 != pl2 {
		t.Error("10.0 and 10.00 should share one level")
	}
	if tree.Size() != 1 {
		t.Errorf("expected size 1, got %d", tree.Size())
	}
}

func TestRBTreeOrderAfterChurn(t *testing.T) {
	tree := NewRBTree()
	rng := rand.New(rand.NewSource(7))
	live := map[int64]bool{}

	for i := 0; i < 2000; i++ {
		k := rng.Int63n(300)
		if rng.Intn(3) == 0 {
			if tree.DeleteLevel(decimal.NewFromInt(k)) != live[k] {
				t.Fatalf("delete %d disagreed with model", k)
			}
			delete(live, k)
			continue
		}
		tree.UpsertLevel(decimal.NewFromInt(k))
		live[k] = true
	}

	if tree.Size() != len(live) {
		t.Fatalf("size %d, model %d", tree.Size(), len(live))
	}

	var prev *decimal.Decimal
	seen := 0
	tree.ForEachAscending(func(pl *PriceLevel) bool {
		if prev != nil && !pl.Price.GreaterThan(*prev) {
			t.Fatalf("ascending walk out of order: %s after %s", pl.Price, prev)
		}
		p := pl.Price
		prev = &p
		seen++
		return true
	})
	if seen != len(live) {
		t.Fatalf("walk saw %d levels, model %d", seen, len(live))
	}

	if blackHeight(tree, tree.root) < 0 {
		t.Fatal("red-black properties violated")
	}
}

func TestForEachDescendingStopsEarly(t *testing.T) {
	tree := NewRBTree()
	for _, p := range []string{"1", "2", "3", "4"} {
		tree.UpsertLevel(px(p))
	}
	var got []string
	tree.ForEachDescending(func(pl *PriceLevel) bool {
		got = append(got, pl.Price.String())
		return len(got) < 2
	})
	if len(got) != 2 || got[0] != "4" || got[1] != "3" {
		t.Errorf("unexpected walk %v", got)
	}
}

// blackHeight returns -1 when a red node has a red child or black
// heights differ.
func blackHeight(t *RBTree, n *node) int {
	if n == t.nil {
		return 1
	}
	if n.color == red && (n.left.color == red || n.right.color == red) {
		return -1
	}
	l := blackHeight(t, n.left)
	r := blackHeight(t, n.right)
	if l < 0 || r < 0 || l != r {
		return -1
	}
	if n.color == black {
		return l + 1
	}
	return l
}
