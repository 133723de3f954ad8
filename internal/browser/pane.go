package browser

import (
	"path"
	"path/filepath"

	"github.com/portico-labs/portico/internal/protocol"
)

// Side identifies one of the two browser panes.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// SortKey selects the pane ordering.
type SortKey string

const (
	SortByName SortKey = "name"
	SortBySize SortKey = "size"
)

// paneState is the mutable state of one pane. All access goes through the
// Browser's mutex.
type paneState struct {
	side     Side
	cwd      string
	entries  []protocol.FileEntry
	selected string // path of the selected entry, empty when none
	loading  bool
	sortKey  SortKey
}

// PaneView is a read-only snapshot of one pane.
type PaneView struct {
	Side         Side
	CWD          string
	Entries      []protocol.FileEntry
	SelectedPath string
	Loading      bool
	Sort         SortKey
}

// Selected returns the selected entry, if any.
func (v PaneView) Selected() (protocol.FileEntry, bool) {
	for _, e := range v.Entries {
		if e.Path == v.SelectedPath && v.SelectedPath != "" {
			return e, true
		}
	}
	return protocol.FileEntry{}, false
}

func (p *paneState) view() PaneView {
	entries := make([]protocol.FileEntry, len(p.entries))
	copy(entries, p.entries)
	return PaneView{
		Side:         p.side,
		CWD:          p.cwd,
		Entries:      entries,
		SelectedPath: p.selected,
		Loading:      p.loading,
		Sort:         p.sortKey,
	}
}

func (p *paneState) hasPath(target string) bool {
	for _, e := range p.entries {
		if e.Path == target {
			return true
		}
	}
	return false
}

func (p *paneState) selectedEntry() (protocol.FileEntry, bool) {
	if p.selected == "" {
		return protocol.FileEntry{}, false
	}
	for _, e := range p.entries {
		if e.Path == p.selected {
			return e, true
		}
	}
	return protocol.FileEntry{}, false
}

// joinEntry builds the path of an entry named name inside dir. Remote paths
// are always slash-separated; local paths follow the host OS.
func joinEntry(side Side, dir, name string) string {
	if side == SideRemote {
		return path.Join(dir, name)
	}
	return filepath.Join(dir, name)
}

// parentOf returns the directory containing p.
func parentOf(side Side, p string) string {
	if side == SideRemote {
		return path.Dir(p)
	}
	return filepath.Dir(p)
}
