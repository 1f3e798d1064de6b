package avl

import (
	"cmp"
	"math/rand"
	"testing"
)

func intTree() *Tree[int, string] {
	return New[int, string](cmp.Compare[int])
}

func TestInsertSearchFindsValue(t *testing.T) {
	tr := intTree()
	tr.Insert(5, "five")
	tr.Insert(3, "three")
	tr.Insert(8, "eight")

	n := tr.Search(3)
	if n == nil || n.Value != "three" {
		t.Fatalf("Search(3) = %v, want three", n)
	}
	if tr.Search(99) != nil {
		t.Fatal("Search found a key never inserted")
	}
}

func TestDisallowCopiesRejectsDuplicate(t *testing.T) {
	tr := intTree()
	tr.Insert(1, "a")
	_, inserted := tr.Insert(1, "b")
	if inserted {
		t.Fatal("duplicate insert should have been rejected")
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
}

func TestAllowCopiesAcceptsDuplicate(t *testing.T) {
	tr := intTree()
	tr.AllowCopies = true
	tr.Insert(1, "a")
	_, inserted := tr.Insert(1, "b")
	if !inserted {
		t.Fatal("duplicate insert should have been accepted with AllowCopies")
	}
	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tr.Len())
	}
}

func TestMinMax(t *testing.T) {
	tr := intTree()
	for _, k := range []int{5, 1, 9, 3, 7} {
		tr.Insert(k, "")
	}
	if tr.Min().Key != 1 {
		t.Fatalf("Min() = %d, want 1", tr.Min().Key)
	}
	if tr.Max().Key != 9 {
		t.Fatalf("Max() = %d, want 9", tr.Max().Key)
	}
}

func TestDeleteRemovesAndRebalances(t *testing.T) {
	tr := intTree()
	keys := []int{10, 20, 30, 40, 50, 25}
	for _, k := range keys {
		tr.Insert(k, "")
	}
	if !tr.Delete(30) {
		t.Fatal("Delete(30) reported not found")
	}
	if tr.Search(30) != nil {
		t.Fatal("30 still present after Delete")
	}
	if tr.Len() != len(keys)-1 {
		t.Fatalf("Len() = %d, want %d", tr.Len(), len(keys)-1)
	}
	assertBalanced(t, tr.root)
}

func TestDeleteNodeByHandle(t *testing.T) {
	tr := intTree()
	n, _ := tr.Insert(42, "answer")
	tr.Insert(1, "")
	tr.Insert(2, "")
	tr.DeleteNode(n)
	if tr.Search(42) != nil {
		t.Fatal("node still findable after DeleteNode")
	}
}

// TestRandomizedInsertDeleteStaysBalanced inserts and deletes a large
// randomized key set and checks the AVL balance invariant after every
// mutation, catching rotation bugs that only manifest on certain shapes.
func TestRandomizedInsertDeleteStaysBalanced(t *testing.T) {
	tr := intTree()
	rng := rand.New(rand.NewSource(1))
	present := map[int]bool{}

	for i := 0; i < 2000; i++ {
		k := rng.Intn(500)
		if rng.Intn(3) == 0 && present[k] {
			tr.Delete(k)
			delete(present, k)
		} else {
			tr.Insert(k, "")
			present[k] = true
		}
		assertBalanced(t, tr.root)
	}

	if tr.Len() != len(present) {
		t.Fatalf("Len() = %d, want %d", tr.Len(), len(present))
	}
	for k := range present {
		if tr.Search(k) == nil {
			t.Fatalf("key %d missing after randomized workload", k)
		}
	}
}

func TestInOrderIsAscending(t *testing.T) {
	tr := New[int, string](func(a, b int) int { return a - b })
	for _, k := range []int{5, 3, 8, 1, 4, 7, 9, 2, 6} {
		tr.Insert(k, "")
	}

	var got []int
	tr.InOrder(func(k int, _ string) { got = append(got, k) })

	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("InOrder visited %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("InOrder[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

// assertBalanced walks the whole tree verifying both the AVL height
// invariant and that each node's cached balance factor matches its
// actual subtree heights.
func assertBalanced[K any, V any](t *testing.T, n *Node[K, V]) int {
	t.Helper()
	if n == nil {
		return 0
	}
	lh := assertBalanced(t, n.left)
	rh := assertBalanced(t, n.right)
	diff := rh - lh
	if diff < -1 || diff > 1 {
		t.Fatalf("AVL balance invariant violated: height diff %d", diff)
	}
	if n.balance != diff {
		t.Fatalf("cached balance %d does not match actual height diff %d", n.balance, diff)
	}
	return 1 + max(lh, rh)
}
