package minifier

import "github.com/r8core/r8/internal/itemfactory"

// unionFind is a standard disjoint-set structure keyed by DexMethod
// reference, used to collapse an override/co-implement chain into one
// equivalence class.
type unionFind struct {
	parent map[itemfactory.DexMethod]itemfactory.DexMethod
	rank   map[itemfactory.DexMethod]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[itemfactory.DexMethod]itemfactory.DexMethod),
		rank:   make(map[itemfactory.DexMethod]int),
	}
}

func (u *unionFind) find(x itemfactory.DexMethod) itemfactory.DexMethod {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b itemfactory.DexMethod) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
