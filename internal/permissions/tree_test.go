package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func samplePermissions() []Permission {
	return []Permission{
		{ID: 1, Name: "class.page", DisplayName: "Class", ElementType: ElementPage},
		{ID: 2, Name: "class.grid1", DisplayName: "Grid 1", ElementType: ElementGrid, ParentID: ptr(1)},
		{ID: 3, Name: "class.grid2", DisplayName: "Grid 2", ElementType: ElementGrid, ParentID: ptr(1)},
		{ID: 4, Name: "class.grid1.add", DisplayName: "Add", ElementType: ElementButton, ParentID: ptr(2)},
		{ID: 5, Name: "class.grid1.delete", DisplayName: "Delete", ElementType: ElementButton, ParentID: ptr(2)},
		{ID: 6, Name: "admin.page", DisplayName: "Admin", ElementType: ElementPage},
	}
}

func collectIDs(t *testing.T, forest []*TreeNode) []int64 {
	t.Helper()
	var ids []int64
	var walk func(nodes []*TreeNode)
	walk = func(nodes []*TreeNode) {
		for _, n := range nodes {
			ids = append(ids, n.ID)
			walk(n.Children)
		}
	}
	walk(forest)
	return ids
}

func TestBuildTreeEveryNodeExactlyOnce(t *testing.T) {
	all := samplePermissions()
	forest := BuildTree(all, nil)

	ids := collectIDs(t, forest)
	require.Len(t, ids, len(all))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		require.False(t, seen[id], "id %d appears twice", id)
		seen[id] = true
	}
	for _, p := range all {
		require.True(t, seen[p.ID], "id %d missing from tree", p.ID)
	}
}

func TestBuildTreeShape(t *testing.T) {
	forest := BuildTree(samplePermissions(), nil)

	require.Len(t, forest, 2)
	// Roots sorted by name: admin.page before class.page.
	require.Equal(t, "admin.page", forest[0].Name)
	require.Equal(t, "class.page", forest[1].Name)

	class := forest[1]
	require.Len(t, class.Children, 2)
	grid1 := class.Children[0]
	require.Equal(t, "class.grid1", grid1.Name)
	require.Len(t, grid1.Children, 2)
	require.Equal(t, "class.grid1.add", grid1.Children[0].Name)
	require.Equal(t, "class.grid1.delete", grid1.Children[1].Name)
}

func TestBuildTreeMissingParentBecomesRoot(t *testing.T) {
	all := []Permission{
		{ID: 1, Name: "orphan.grid", ElementType: ElementGrid, ParentID: ptr(99)},
		{ID: 2, Name: "root.page", ElementType: ElementPage},
	}
	forest := BuildTree(all, nil)

	require.Len(t, forest, 2)
	require.Equal(t, "orphan.grid", forest[0].Name)
	require.Empty(t, forest[0].Children)
}

func TestBuildTreeSelfParentBecomesRoot(t *testing.T) {
	all := []Permission{{ID: 7, Name: "loop.page", ElementType: ElementPage, ParentID: ptr(7)}}
	forest := BuildTree(all, nil)

	require.Len(t, forest, 1)
	require.Equal(t, int64(7), forest[0].ID)
	require.Empty(t, forest[0].Children)
}

func TestBuildTreeParentCycleMembersBecomeRoots(t *testing.T) {
	all := []Permission{
		{ID: 1, Name: "a.page", ElementType: ElementPage, ParentID: ptr(2)},
		{ID: 2, Name: "b.page", ElementType: ElementPage, ParentID: ptr(1)},
	}
	forest := BuildTree(all, nil)

	require.Len(t, forest, 2)
	require.Equal(t, "a.page", forest[0].Name)
	require.Equal(t, "b.page", forest[1].Name)
	require.Empty(t, forest[0].Children)
	require.Empty(t, forest[1].Children)
}

func TestBuildTreeCycleDescendantStaysAttached(t *testing.T) {
	all := []Permission{
		{ID: 1, Name: "a.page", ElementType: ElementPage, ParentID: ptr(2)},
		{ID: 2, Name: "b.page", ElementType: ElementPage, ParentID: ptr(1)},
		{ID: 3, Name: "c.grid", ElementType: ElementGrid, ParentID: ptr(1)},
	}
	forest := BuildTree(all, nil)

	// The loop members surface as roots; their descendant keeps its parent.
	require.Len(t, collectIDs(t, forest), 3)
	require.Len(t, forest, 2)
	require.Equal(t, "a.page", forest[0].Name)
	require.Len(t, forest[0].Children, 1)
	require.Equal(t, "c.grid", forest[0].Children[0].Name)
}

func TestClosesLoop(t *testing.T) {
	// Stored state after one reparent committed: a(1) sits under b(2).
	parents := map[int64]*int64{1: ptr(2), 2: nil, 3: ptr(1)}

	// Moving b under a, or b under a's subtree, would close a loop.
	require.True(t, closesLoop(parents, 2, 1))
	require.True(t, closesLoop(parents, 2, 3))
	// Moving c under b keeps the forest acyclic.
	require.False(t, closesLoop(parents, 3, 2))
	// Self-parent is the degenerate loop.
	require.True(t, closesLoop(parents, 1, 1))
}

func TestBuildTreeSelectionOnlyFlipsFlags(t *testing.T) {
	all := samplePermissions()
	plain := BuildTree(all, nil)
	selected := BuildTree(all, map[int64]bool{2: true, 4: true})

	require.Equal(t, collectIDs(t, plain), collectIDs(t, selected))

	var flagged []int64
	var walk func(nodes []*TreeNode)
	walk = func(nodes []*TreeNode) {
		for _, n := range nodes {
			if n.Selected {
				flagged = append(flagged, n.ID)
			}
			walk(n.Children)
		}
	}
	walk(selected)
	require.ElementsMatch(t, []int64{2, 4}, flagged)

	for _, n := range collectNodes(plain) {
		require.False(t, n.Selected)
	}
}

func collectNodes(forest []*TreeNode) []*TreeNode {
	var out []*TreeNode
	var walk func(nodes []*TreeNode)
	walk = func(nodes []*TreeNode) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Children)
		}
	}
	walk(forest)
	return out
}

func TestBuildTreeStableOrder(t *testing.T) {
	all := samplePermissions()
	first := BuildTree(all, nil)

	// Same input in a different order yields the same rendering.
	shuffled := []Permission{all[4], all[1], all[5], all[0], all[3], all[2]}
	second := BuildTree(shuffled, nil)

	require.Equal(t, collectIDs(t, first), collectIDs(t, second))
}
