package book

import "github.com/tradsys/marketcore/internal/types"

// Level is one price-aggregated row of a book side: invariant Quantity>0
// and OrderCount>=1 always holds for any Level reachable from a Side — a
// level that reaches zero quantity is removed, never left observable at
// zero, matching spec.md's BookLevel invariant.
type Level struct {
	Price      types.Price
	Quantity   types.Quantity
	OrderCount uint32
}

// priceLevelNode is a node of the AVL tree keyed by Price. The tree is
// always a plain ascending-by-price BST; which end counts as "best" (min
// for asks, max for bids) is a property of how the owning Side reads it,
// not of the tree itself.
//
// Grounded on the teacher's PriceLevelTree/PriceLevelNode shape
// (internal/orders/matching/hft_types.go) but implemented here as a real
// self-balancing AVL tree: the teacher's tree carried the same left/right/
// parent/height fields but no rebalancing logic, so it could degrade to a
// linked list under monotonic price sequences. AVL rotations keep mutation
// and min/max lookup at O(log n) as spec.md's algorithmic contract requires.
type priceLevelNode struct {
	price  types.Price
	level  Level
	left   *priceLevelNode
	right  *priceLevelNode
	parent *priceLevelNode
	height int
}

// priceLevelTree is an AVL tree mapping Price -> Level with O(log n)
// insert/delete/lookup and O(log n) min/max (the owning Side caches the
// result of min/max in an atomically-read field for O(1) reads between
// mutations, per spec.md's best-price cache requirement).
type priceLevelTree struct {
	root  *priceLevelNode
	count int
}

func nodeHeight(n *priceLevelNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func updateHeight(n *priceLevelNode) {
	n.height = 1 + maxInt(nodeHeight(n.left), nodeHeight(n.right))
}

func balanceFactor(n *priceLevelNode) int {
	if n == nil {
		return 0
	}
	return nodeHeight(n.left) - nodeHeight(n.right)
}

func (t *priceLevelTree) rotateLeft(x *priceLevelNode) *priceLevelNode {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	y.left = x
	x.parent = y
	updateHeight(x)
	updateHeight(y)
	return y
}

func (t *priceLevelTree) rotateRight(x *priceLevelNode) *priceLevelNode {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	y.right = x
	x.parent = y
	updateHeight(x)
	updateHeight(y)
	return y
}

func (t *priceLevelTree) rebalance(n *priceLevelNode) *priceLevelNode {
	updateHeight(n)
	bf := balanceFactor(n)
	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n.left = t.rotateLeft(n.left)
		}
		return t.rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n.right = t.rotateRight(n.right)
		}
		return t.rotateLeft(n)
	}
	return n
}

// find returns the node for price, or nil.
func (t *priceLevelTree) find(price types.Price) *priceLevelNode {
	n := t.root
	for n != nil {
		switch {
		case price == n.price:
			return n
		case price < n.price:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

// upsert inserts a new level or returns the existing node for price.
func (t *priceLevelTree) upsert(price types.Price) *priceLevelNode {
	if existing := t.find(price); existing != nil {
		return existing
	}
	t.root = t.insert(t.root, nil, price)
	t.count++
	return t.find(price)
}

func (t *priceLevelTree) insert(n, parent *priceLevelNode, price types.Price) *priceLevelNode {
	if n == nil {
		return &priceLevelNode{price: price, parent: parent, height: 1}
	}
	if price < n.price {
		n.left = t.insert(n.left, n, price)
	} else if price > n.price {
		n.right = t.insert(n.right, n, price)
	} else {
		return n
	}
	return t.rebalance(n)
}

// delete removes the level at price, if present.
func (t *priceLevelTree) delete(price types.Price) {
	var removed bool
	t.root, removed = t.deleteNode(t.root, price)
	if removed {
		t.count--
	}
}

func (t *priceLevelTree) deleteNode(n *priceLevelNode, price types.Price) (*priceLevelNode, bool) {
	if n == nil {
		return nil, false
	}
	var removed bool
	switch {
	case price < n.price:
		n.left, removed = t.deleteNode(n.left, price)
		if n.left != nil {
			n.left.parent = n
		}
	case price > n.price:
		n.right, removed = t.deleteNode(n.right, price)
		if n.right != nil {
			n.right.parent = n
		}
	default:
		removed = true
		switch {
		case n.left == nil:
			if n.right != nil {
				n.right.parent = n.parent
			}
			return n.right, true
		case n.right == nil:
			if n.left != nil {
				n.left.parent = n.parent
			}
			return n.left, true
		default:
			successor := n.right
			for successor.left != nil {
				successor = successor.left
			}
			n.price = successor.price
			n.level = successor.level
			n.right, _ = t.deleteNode(n.right, successor.price)
			if n.right != nil {
				n.right.parent = n
			}
		}
	}
	if n == nil {
		return nil, removed
	}
	return t.rebalance(n), removed
}

// min returns the node with the lowest price, or nil if empty.
func (t *priceLevelTree) min() *priceLevelNode {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

// max returns the node with the highest price, or nil if empty.
func (t *priceLevelTree) max() *priceLevelNode {
	n := t.root
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

// topAscending appends up to max levels in ascending price order.
func (t *priceLevelTree) topAscending(max int, out []Level) []Level {
	return t.walk(t.root, true, max, out)
}

// topDescending appends up to max levels in descending price order.
func (t *priceLevelTree) topDescending(max int, out []Level) []Level {
	return t.walk(t.root, false, max, out)
}

func (t *priceLevelTree) walk(n *priceLevelNode, ascending bool, max int, out []Level) []Level {
	if n == nil || len(out) >= max {
		return out
	}
	first, second := n.left, n.right
	if !ascending {
		first, second = n.right, n.left
	}
	out = t.walk(first, ascending, max, out)
	if len(out) < max {
		out = append(out, n.level)
	}
	if len(out) < max {
		out = t.walk(second, ascending, max, out)
	}
	return out
}

func (t *priceLevelTree) sumTopN(n int, ascending bool) (qty types.Quantity) {
	levels := t.walk(t.root, ascending, n, make([]Level, 0, n))
	for _, l := range levels {
		qty += l.Quantity
	}
	return qty
}
