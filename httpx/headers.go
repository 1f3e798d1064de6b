package httpx

import (
	"strings"

	"github.com/vela-systems/netkit/avl"
)

// Headers is an ordered, case-insensitive multi-map of header fields.
// Serialization walks the tree in ascending canonical-key order, giving
// deterministic wire output regardless of the order fields were added.
type Headers struct {
	tree *avl.Tree[string, []string]
}

// NewHeaders constructs an empty Headers.
func NewHeaders() *Headers {
	t := avl.New[string, []string](strings.Compare)
	t.AllowCopies = false
	return &Headers{tree: t}
}

func canon(name string) string { return strings.ToLower(name) }

// Add appends value to name's value list, preserving any existing
// values (mirrors net/http.Header.Add, not Set).
func (h *Headers) Add(name, value string) {
	key := canon(name)
	if n := h.tree.Search(key); n != nil {
		n.Value = append(n.Value, value)
		return
	}
	h.tree.Insert(key, []string{value})
}

// Set replaces name's value list with a single value.
func (h *Headers) Set(name, value string) {
	key := canon(name)
	if n := h.tree.Search(key); n != nil {
		n.Value = []string{value}
		return
	}
	h.tree.Insert(key, []string{value})
}

// Get returns the first value for name, or "" if absent.
func (h *Headers) Get(name string) string {
	vs := h.Values(name)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns every value for name in insertion order, or nil.
func (h *Headers) Values(name string) []string {
	n := h.tree.Search(canon(name))
	if n == nil {
		return nil
	}
	return n.Value
}

// Has reports whether name has at least one value.
func (h *Headers) Has(name string) bool {
	return h.tree.Search(canon(name)) != nil
}

// Del removes all values for name.
func (h *Headers) Del(name string) {
	h.tree.Delete(canon(name))
}

// Range calls fn once per (name, value) pair in ascending canonical-name
// order, with repeated values for the same name emitted as separate
// calls in their Add order — matching how each is serialized as its own
// header line.
func (h *Headers) Range(fn func(name, value string)) {
	h.tree.InOrder(func(key string, values []string) {
		for _, v := range values {
			fn(key, v)
		}
	})
}

// Len returns the number of distinct header names.
func (h *Headers) Len() int { return h.tree.Len() }
