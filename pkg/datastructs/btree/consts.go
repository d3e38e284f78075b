package btree

const (
	// MinDegree is the smallest supported minimum branching factor.
	MinDegree = 2

	// maxHeight bounds every descent. A deeper tree means a child link
	// points back up the tree.
	maxHeight = 64
)
