// ASSOC: Association Discovery over Clinical Encounters
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package fpgrowth

import "sort"

const root int32 = 0

// Node represents one item at one position in an FP-tree. Nodes are stored in the arena of their tree and refer to
// each other by index.
type Node struct {
	Item     string           //item code, empty for the root
	Count    int              //number of transactions passing through this node
	Parent   int32            //index of the parent node, -1 for the root
	Children map[string]int32 //child per distinct item, nil for leaves
}

// Tree is a prefix-sharing trie over transactions. Every root-to-node path represents a transaction (or the start
// of one), and items along a path appear in descending support order, so transactions that share frequent items
// share storage.
type Tree struct {
	Nodes  []Node             //arena, Nodes[0] is the root
	Links  map[string][]int32 //node-link index: all nodes carrying an item, in creation order
	Order  []string           //items in order of first insertion
	Prefix []string           //items factored out when this is a conditional tree
}

// NewTree returns an empty tree with the given prefix items.
func NewTree(prefix []string) *Tree {
	return &Tree{
		Nodes:  []Node{{Parent: -1}},
		Links:  map[string][]int32{},
		Prefix: prefix,
	}
}

// Empty is true when no items were inserted.
func (t *Tree) Empty() bool {
	return len(t.Nodes) == 1
}

// Count returns the number of transactions (or the summed weight of the paths) inserted in the tree.
func (t *Tree) Count() int {
	return t.Nodes[root].Count
}

// Size returns the number of item nodes in the tree.
func (t *Tree) Size() int {
	return len(t.Nodes) - 1
}

// Insert adds an itemset to the tree with the given count. The items must already be sorted in the order of the
// tree: descending support, ties broken by item code.
func (t *Tree) Insert(items []string, count int) {
	current := root
	t.Nodes[root].Count += count
	for i, item := range items {
		child, ok := t.Nodes[current].Children[item]
		if !ok {
			for _, rest := range items[i:] {
				current = t.addNode(current, rest, count)
			}
			return
		}
		t.Nodes[child].Count += count
		current = child
	}
}

func (t *Tree) addNode(parent int32, item string, count int) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Item: item, Count: count, Parent: parent})
	p := &t.Nodes[parent]
	if p.Children == nil {
		p.Children = map[string]int32{}
	}
	p.Children[item] = idx
	if _, ok := t.Links[item]; !ok {
		t.Order = append(t.Order, item)
	}
	t.Links[item] = append(t.Links[item], idx)
	return idx
}

// Support returns the summed count of all nodes carrying item.
func (t *Tree) Support(item string) int {
	support := 0
	for _, idx := range t.Links[item] {
		support += t.Nodes[idx].Count
	}
	return support
}

// IsPath is true if the tree is a single chain without branches.
func (t *Tree) IsPath() bool {
	n := &t.Nodes[root]
	for {
		switch len(n.Children) {
		case 0:
			return true
		case 1:
			for _, child := range n.Children {
				n = &t.Nodes[child]
			}
		default:
			return false
		}
	}
}

// chain returns the items and counts of a tree that is a path, from the root down.
func (t *Tree) chain() ([]string, []int) {
	var items []string
	var counts []int
	n := &t.Nodes[root]
	for len(n.Children) == 1 {
		for _, child := range n.Children {
			n = &t.Nodes[child]
		}
		items = append(items, n.Item)
		counts = append(counts, n.Count)
	}
	return items, counts
}

// Descendants returns the number of nodes below the node at idx.
func (t *Tree) Descendants(idx int32) int {
	ctr := 0
	stack := []int32{idx}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range t.Nodes[n].Children {
			ctr++
			stack = append(stack, child)
		}
	}
	return ctr
}

// itemPath returns the items on the path from the root to the parent of the node at idx.
func (t *Tree) itemPath(idx int32) []string {
	var path []string
	for p := t.Nodes[idx].Parent; p > root; p = t.Nodes[p].Parent {
		path = append(path, t.Nodes[p].Item)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// sortBySupport sorts items by descending support, breaking ties on the item code.
func sortBySupport(items []string, support map[string]int) {
	sort.Slice(items, func(i, j int) bool {
		si, sj := support[items[i]], support[items[j]]
		if si != sj {
			return si > sj
		}
		return items[i] < items[j]
	})
}

// Conditional builds the conditional tree of item. It gathers the path leading to every node of item, weighted by
// the count of that node, and keeps the path items whose summed weight lies within [min, max]. The surviving items
// are re-ranked on their conditional support and the filtered paths are inserted into a new tree whose prefix is the
// prefix of t extended with item. The receiver is not modified.
func (t *Tree) Conditional(item string, min, max int) *Tree {
	links := t.Links[item]
	paths := make([][]string, len(links))
	weights := map[string]int{}
	for i, idx := range links {
		paths[i] = t.itemPath(idx)
		for _, it := range paths[i] {
			weights[it] += t.Nodes[idx].Count
		}
	}
	// rank ascending on conditional support, so higher ranks go first
	ranked := make([]string, 0, len(weights))
	for it, w := range weights {
		if w >= min && w <= max {
			ranked = append(ranked, it)
		}
	}
	sortBySupport(ranked, weights)
	for i, j := 0, len(ranked)-1; i < j; i, j = i+1, j-1 {
		ranked[i], ranked[j] = ranked[j], ranked[i]
	}
	rank := make(map[string]int, len(ranked))
	for r, it := range ranked {
		rank[it] = r
	}
	prefix := make([]string, 0, len(t.Prefix)+1)
	prefix = append(append(prefix, t.Prefix...), item)
	cond := NewTree(prefix)
	for i, idx := range links {
		path := paths[i][:0]
		for _, it := range paths[i] {
			if _, ok := rank[it]; ok {
				path = append(path, it)
			}
		}
		sort.Slice(path, func(a, b int) bool { return rank[path[a]] > rank[path[b]] })
		cond.Insert(path, t.Nodes[idx].Count)
	}
	return cond
}

// Restrict returns a copy of the tree that only contains the items whose support lies within [min, max]. Each
// transaction stored in the tree is re-inserted without the dropped items, so the root count is unchanged. This
// allows mining a stored tree with tighter bounds than it was built with.
func (t *Tree) Restrict(min, max int) *Tree {
	keep := map[string]bool{}
	for _, item := range t.Order {
		if s := t.Support(item); s >= min && s <= max {
			keep[item] = true
		}
	}
	restricted := NewTree(t.Prefix)
	for idx := range t.Nodes {
		n := &t.Nodes[idx]
		// the number of transactions that end at this node
		ending := n.Count
		for _, child := range n.Children {
			ending -= t.Nodes[child].Count
		}
		if ending <= 0 {
			continue
		}
		var items []string
		if idx != int(root) {
			for _, it := range append(t.itemPath(int32(idx)), n.Item) {
				if keep[it] {
					items = append(items, it)
				}
			}
		}
		restricted.Insert(items, ending)
	}
	return restricted
}
