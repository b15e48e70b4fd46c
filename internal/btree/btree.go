// Package btree implements the engine's B+Tree secondary index: an arena
// of nodes addressed by integer id (never by pointer), with exact
// split/merge policies and a textual save/load format so an index can be
// persisted to and restored from a single file.
package btree

import (
	"sort"

	"quelldb/pkg/dberr"
	"quelldb/pkg/utils"
)

// noLeaf marks a leaf's next pointer as absent (the rightmost leaf).
const noLeaf = -1

// node is one page of the tree. Leaves carry values and a next-leaf link
// to their right sibling (noLeaf if none); internal nodes carry children.
// Keys are always kept sorted ascending.
type node struct {
	id       int
	isLeaf   bool
	keys     []string
	values   []string // parallel to keys, leaf only
	children []int    // len(children) == len(keys)+1, internal only
	next     int      // id of the next leaf in key order, leaf only
}

// Tree is a B+Tree index over fixed-length string keys (sliceIndexKey
// truncates longer keys to keyLength bytes before every operation).
type Tree struct {
	pageSize  int
	keyLength int
	maxKeys   int
	minKeys   int
	root      int // -1 means empty tree
	nextID    int
	nodes     map[int]*node
}

// New constructs an empty tree for the given page size and index key
// length, deriving maxKeys/minKeys per the engine's page-budget formula.
func New(pageSize, keyLength int) *Tree {
	maxKeys := (pageSize - 32) / (keyLength + 12)
	if maxKeys < 3 {
		maxKeys = 3
	}
	minKeys := maxKeys / 2
	if minKeys < 1 {
		minKeys = 1
	}
	return &Tree{
		pageSize:  pageSize,
		keyLength: keyLength,
		maxKeys:   maxKeys,
		minKeys:   minKeys,
		root:      -1,
		nextID:    0,
		nodes:     make(map[int]*node),
	}
}

// sliceIndexKey truncates key to the tree's fixed key length; keys
// shorter than keyLength are left as-is (no padding).
func (t *Tree) sliceIndexKey(key string) string {
	if len(key) > t.keyLength {
		return key[:t.keyLength]
	}
	return key
}

func (t *Tree) newNodeID() int {
	id := t.nextID
	t.nextID++
	return id
}

func (t *Tree) allocLeaf() *node {
	n := &node{id: t.newNodeID(), isLeaf: true, next: noLeaf}
	t.nodes[n.id] = n
	return n
}

func (t *Tree) allocInternal() *node {
	n := &node{id: t.newNodeID(), isLeaf: false}
	t.nodes[n.id] = n
	return n
}

func (t *Tree) get(id int) *node { return t.nodes[id] }

func (t *Tree) detach(id int) { delete(t.nodes, id) }

// Find returns the value stored under key, if present.
func (t *Tree) Find(key string) (string, bool) {
	key = t.sliceIndexKey(key)
	if t.root == -1 {
		return "", false
	}
	leaf := t.findLeaf(t.root, key)
	i := sort.SearchStrings(leaf.keys, key)
	if i < len(leaf.keys) && leaf.keys[i] == key {
		return leaf.values[i], true
	}
	return "", false
}

func (t *Tree) findLeaf(id int, key string) *node {
	n := t.get(id)
	for !n.isLeaf {
		i := sort.SearchStrings(n.keys, key)
		if i < len(n.keys) && n.keys[i] == key {
			i++
		}
		n = t.get(n.children[i])
	}
	return n
}

// InsertUnique inserts key/value, failing with Conflict if key is already
// present.
func (t *Tree) InsertUnique(key, value string) error {
	key = t.sliceIndexKey(key)
	if _, found := t.Find(key); found {
		return dberr.Newf(dberr.Conflict, "key %q already exists in index", key)
	}
	t.insert(key, value)
	return nil
}

// InsertOrAssign inserts key/value, overwriting any existing value for
// key (upsert).
func (t *Tree) InsertOrAssign(key, value string) {
	key = t.sliceIndexKey(key)
	t.insert(key, value)
}

// Update overwrites the value for an existing key, failing with NotFound
// if key is absent.
func (t *Tree) Update(key, value string) error {
	key = t.sliceIndexKey(key)
	if t.root == -1 {
		return dberr.Newf(dberr.NotFound, "key %q not found", key)
	}
	leaf := t.findLeaf(t.root, key)
	i := sort.SearchStrings(leaf.keys, key)
	if i >= len(leaf.keys) || leaf.keys[i] != key {
		return dberr.Newf(dberr.NotFound, "key %q not found", key)
	}
	leaf.values[i] = value
	return nil
}

func (t *Tree) insert(key, value string) {
	if t.root == -1 {
		leaf := t.allocLeaf()
		leaf.keys = []string{key}
		leaf.values = []string{value}
		t.root = leaf.id
		return
	}
	medianKey, newChildID, split := t.insertInto(t.root, key, value)
	if split {
		newRoot := t.allocInternal()
		newRoot.keys = []string{medianKey}
		newRoot.children = []int{t.root, newChildID}
		t.root = newRoot.id
	}
}

// insertInto inserts into the subtree rooted at id, returning
// (medianKey, newSiblingID, didSplit) when the node had to split.
func (t *Tree) insertInto(id int, key, value string) (string, int, bool) {
	n := t.get(id)
	if n.isLeaf {
		i := sort.SearchStrings(n.keys, key)
		if i < len(n.keys) && n.keys[i] == key {
			n.values[i] = value
			return "", 0, false
		}
		n.keys = insertStringAt(n.keys, i, key)
		n.values = insertStringAt(n.values, i, value)
		if len(n.keys) <= t.maxKeys {
			return "", 0, false
		}
		return t.splitLeaf(n)
	}

	i := sort.SearchStrings(n.keys, key)
	if i < len(n.keys) && n.keys[i] == key {
		i++
	}
	childMedian, newChildID, split := t.insertInto(n.children[i], key, value)
	if !split {
		return "", 0, false
	}
	n.keys = insertStringAt(n.keys, i, childMedian)
	n.children = insertIntAt(n.children, i+1, newChildID)
	if len(n.keys) <= t.maxKeys {
		return "", 0, false
	}
	return t.splitInternal(n)
}

func (t *Tree) splitLeaf(n *node) (string, int, bool) {
	mid := len(n.keys) / 2
	right := t.allocLeaf()
	right.keys = append([]string{}, n.keys[mid:]...)
	right.values = append([]string{}, n.values[mid:]...)
	n.keys = n.keys[:mid]
	n.values = n.values[:mid]
	right.next = n.next
	n.next = right.id
	return right.keys[0], right.id, true
}

func (t *Tree) splitInternal(n *node) (string, int, bool) {
	mid := len(n.keys) / 2
	medianKey := n.keys[mid]

	right := t.allocInternal()
	right.keys = append([]string{}, n.keys[mid+1:]...)
	right.children = append([]int{}, n.children[mid+1:]...)

	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]
	utils.Assert(len(n.children) == len(n.keys)+1, "internal node keeps children == keys+1 after split")
	utils.Assert(len(right.children) == len(right.keys)+1, "split-off sibling keeps children == keys+1")

	return medianKey, right.id, true
}

// Erase removes key, rebalancing via borrow-then-merge. Returns NotFound
// if key is absent.
func (t *Tree) Erase(key string) error {
	key = t.sliceIndexKey(key)
	if t.root == -1 {
		return dberr.Newf(dberr.NotFound, "key %q not found", key)
	}
	if _, found := t.Find(key); !found {
		return dberr.Newf(dberr.NotFound, "key %q not found", key)
	}
	t.eraseFrom(t.root, key)

	root := t.get(t.root)
	if !root.isLeaf && len(root.keys) == 0 {
		newRoot := root.children[0]
		t.detach(t.root)
		t.root = newRoot
	}
	return nil
}

func (t *Tree) eraseFrom(id int, key string) {
	n := t.get(id)
	if n.isLeaf {
		i := sort.SearchStrings(n.keys, key)
		n.keys = removeStringAt(n.keys, i)
		n.values = removeStringAt(n.values, i)
		return
	}

	i := sort.SearchStrings(n.keys, key)
	if i < len(n.keys) && n.keys[i] == key {
		i++
	}
	childID := n.children[i]
	t.eraseFrom(childID, key)
	t.rebalanceChild(n, i)
}

// rebalanceChild restores the minKeys invariant for n.children[childIdx]
// after a deletion, preferring to borrow from the left sibling, then the
// right sibling, and only merging (left sibling, or the right sibling
// when childIdx is 0) if neither can spare a key.
func (t *Tree) rebalanceChild(parent *node, childIdx int) {
	child := t.get(parent.children[childIdx])
	if len(child.keys) >= t.minKeys {
		return
	}

	if childIdx > 0 {
		left := t.get(parent.children[childIdx-1])
		if len(left.keys) > t.minKeys {
			t.borrowFromLeft(parent, childIdx, left, child)
			return
		}
	}
	if childIdx < len(parent.children)-1 {
		right := t.get(parent.children[childIdx+1])
		if len(right.keys) > t.minKeys {
			t.borrowFromRight(parent, childIdx, child, right)
			return
		}
	}

	if childIdx > 0 {
		left := t.get(parent.children[childIdx-1])
		t.mergeChildren(parent, childIdx-1, left, child)
		return
	}
	right := t.get(parent.children[childIdx+1])
	t.mergeChildren(parent, childIdx, child, right)
}

func (t *Tree) borrowFromLeft(parent *node, childIdx int, left, child *node) {
	if child.isLeaf {
		n := len(left.keys)
		borrowedKey := left.keys[n-1]
		borrowedVal := left.values[n-1]
		left.keys = left.keys[:n-1]
		left.values = left.values[:n-1]
		child.keys = insertStringAt(child.keys, 0, borrowedKey)
		child.values = insertStringAt(child.values, 0, borrowedVal)
		parent.keys[childIdx-1] = child.keys[0]
		return
	}
	n := len(left.keys)
	borrowedKey := left.keys[n-1]
	borrowedChild := left.children[len(left.children)-1]
	left.keys = left.keys[:n-1]
	left.children = left.children[:len(left.children)-1]

	child.keys = insertStringAt(child.keys, 0, parent.keys[childIdx-1])
	child.children = insertIntAt(child.children, 0, borrowedChild)
	parent.keys[childIdx-1] = borrowedKey
}

func (t *Tree) borrowFromRight(parent *node, childIdx int, child, right *node) {
	if child.isLeaf {
		borrowedKey := right.keys[0]
		borrowedVal := right.values[0]
		right.keys = right.keys[1:]
		right.values = right.values[1:]
		child.keys = append(child.keys, borrowedKey)
		child.values = append(child.values, borrowedVal)
		parent.keys[childIdx] = right.keys[0]
		return
	}
	borrowedKey := right.keys[0]
	borrowedChild := right.children[0]
	right.keys = right.keys[1:]
	right.children = right.children[1:]

	child.keys = append(child.keys, parent.keys[childIdx])
	child.children = append(child.children, borrowedChild)
	parent.keys[childIdx] = borrowedKey
}

// mergeChildren merges parent.children[leftIdx+1] into
// parent.children[leftIdx], removing the separator key at leftIdx and the
// now-empty right child from parent.
func (t *Tree) mergeChildren(parent *node, leftIdx int, left, right *node) {
	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
	} else {
		left.keys = append(left.keys, parent.keys[leftIdx])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}
	t.detach(right.id)
	parent.keys = removeStringAt(parent.keys, leftIdx)
	parent.children = removeIntAt(parent.children, leftIdx+1)
}

// BulkInsert inserts every pair in order, upserting (matching
// InsertOrAssign semantics) rather than failing on duplicates.
func (t *Tree) BulkInsert(pairs [][2]string) {
	for _, kv := range pairs {
		t.InsertOrAssign(kv[0], kv[1])
	}
}

// All returns every key/value pair in ascending key order, by descending to
// the leftmost leaf once and then following next-leaf links across the
// rest of the tree.
func (t *Tree) All() [][2]string {
	var out [][2]string
	if t.root == -1 {
		return out
	}
	for id := t.leftmostLeaf(t.root); id != noLeaf; {
		n := t.get(id)
		for i, k := range n.keys {
			out = append(out, [2]string{k, n.values[i]})
		}
		id = n.next
	}
	return out
}

func (t *Tree) leftmostLeaf(id int) int {
	n := t.get(id)
	for !n.isLeaf {
		n = t.get(n.children[0])
	}
	return n.id
}

// Range returns key/value pairs with lo <= key <= hi (either bound may be
// empty to mean unbounded on that side), in ascending order.
func (t *Tree) Range(lo, hi string) [][2]string {
	all := t.All()
	var out [][2]string
	for _, kv := range all {
		if lo != "" && kv[0] < t.sliceIndexKey(lo) {
			continue
		}
		if hi != "" && kv[0] > t.sliceIndexKey(hi) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// PageDescription summarizes one node for DescribePages.
type PageDescription struct {
	ID       int
	IsLeaf   bool
	NumKeys  int
	Children []int
}

// DescribePages returns one PageDescription per node currently in the
// arena, for diagnostics.
func (t *Tree) DescribePages() []PageDescription {
	out := make([]PageDescription, 0, len(t.nodes))
	for id, n := range t.nodes {
		out = append(out, PageDescription{ID: id, IsLeaf: n.isLeaf, NumKeys: len(n.keys), Children: append([]int{}, n.children...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of entries in the index.
func (t *Tree) Len() int { return len(t.All()) }

func insertStringAt(s []string, i int, v string) []string {
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeStringAt(s []string, i int) []string {
	return append(s[:i], s[i+1:]...)
}

func insertIntAt(s []int, i int, v int) []int {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeIntAt(s []int, i int) []int {
	return append(s[:i], s[i+1:]...)
}
