package store

import (
	"context"
	"sort"
	"strings"
)

// TreeNode is one row of the ordered connection tree, depth first. Exactly
// one of Folder and Connection is set.
type TreeNode struct {
	Depth      int
	Folder     *Folder
	Connection *Connection
}

// ListTree returns folders and connections as one depth-first list. Within
// a parent, folders come first and then connections, each ordered by
// position with name as the tiebreaker.
func (s *Store) ListTree(ctx context.Context) ([]TreeNode, error) {
	folders, err := s.Folders.List(ctx)
	if err != nil {
		return nil, err
	}
	connections, err := s.Connections.List(ctx, ConnectionFilter{})
	if err != nil {
		return nil, err
	}

	childFolders := make(map[string][]*Folder)
	for _, f := range folders {
		childFolders[f.ParentID] = append(childFolders[f.ParentID], f)
	}
	childConnections := make(map[string][]*Connection)
	for _, c := range connections {
		childConnections[c.FolderID] = append(childConnections[c.FolderID], c)
	}
	for _, fs := range childFolders {
		sort.SliceStable(fs, func(i, j int) bool { return treeLess(fs[i].Position, fs[i].Name, fs[j].Position, fs[j].Name) })
	}
	for _, cs := range childConnections {
		sort.SliceStable(cs, func(i, j int) bool { return treeLess(cs[i].Position, cs[i].Name, cs[j].Position, cs[j].Name) })
	}

	var nodes []TreeNode
	var walk func(parentID string, depth int)
	walk = func(parentID string, depth int) {
		for _, f := range childFolders[parentID] {
			nodes = append(nodes, TreeNode{Depth: depth, Folder: f})
			walk(f.ID, depth+1)
		}
		for _, c := range childConnections[parentID] {
			nodes = append(nodes, TreeNode{Depth: depth, Connection: c})
		}
	}
	walk("", 0)
	return nodes, nil
}

func treeLess(posA int, nameA string, posB int, nameB string) bool {
	if posA != posB {
		return posA < posB
	}
	return strings.ToLower(nameA) < strings.ToLower(nameB)
}
