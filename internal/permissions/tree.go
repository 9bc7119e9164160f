package permissions

import "sort"

// TreeNode is one node of the editing tree: a permission plus whether the
// role under edit currently holds it.
type TreeNode struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	ElementType string      `json:"element_type"`
	Selected    bool        `json:"selected"`
	Children    []*TreeNode `json:"children,omitempty"`
}

// BuildTree folds the flat permission set into a forest keyed by parent ID.
// Every input permission appears exactly once; a permission whose parent is
// missing from the input, or whose ancestor chain loops back to itself,
// becomes a root rather than being dropped. Siblings are ordered by name
// ascending. The transform is pure: selected only flips Selected flags,
// never the shape.
func BuildTree(all []Permission, selected map[int64]bool) []*TreeNode {
	nodes := make(map[int64]*TreeNode, len(all))
	parents := make(map[int64]*int64, len(all))
	for _, p := range all {
		nodes[p.ID] = &TreeNode{
			ID:          p.ID,
			Name:        p.Name,
			DisplayName: p.DisplayName,
			ElementType: p.ElementType,
			Selected:    selected[p.ID],
		}
		parents[p.ID] = p.ParentID
	}

	var roots []*TreeNode
	for _, p := range all {
		node := nodes[p.ID]
		if p.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*p.ParentID]
		if !ok || closesLoop(parents, p.ID, *p.ParentID) {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortForest(roots)
	return roots
}

// closesLoop reports whether walking the parent chain from parentID leads
// back to id before reaching a root, making id its own ancestor. The walk is
// bounded by the map size so a stored loop that does not involve id
// terminates instead of spinning.
func closesLoop(parents map[int64]*int64, id, parentID int64) bool {
	cursor := parentID
	for steps := 0; steps <= len(parents); steps++ {
		if cursor == id {
			return true
		}
		next, ok := parents[cursor]
		if !ok || next == nil {
			return false
		}
		cursor = *next
	}
	return false
}

func sortForest(nodes []*TreeNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortForest(n.Children)
	}
}
