package browser

import (
	"sort"
	"strings"
	"unicode"

	"github.com/portico-labs/portico/internal/protocol"
)

// sortEntries orders a listing for display. Directories always precede
// files; within the same kind, the size key sorts descending with unknown
// sizes last before falling back to the name comparison, and the name key
// uses the comparison directly.
func sortEntries(entries []protocol.FileEntry, key SortKey) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		aDir := a.Kind == protocol.KindDir
		bDir := b.Kind == protocol.KindDir
		if aDir != bDir {
			return aDir
		}

		if key == SortBySize {
			switch {
			case a.Size != nil && b.Size != nil:
				if *a.Size != *b.Size {
					return *a.Size > *b.Size
				}
			case a.Size != nil:
				return true
			case b.Size != nil:
				return false
			}
		}
		return compareNames(a.Name, b.Name) < 0
	})
}

// compareNames orders names case-insensitively with digit runs compared by
// numeric value, so "file9.txt" sorts before "file10.txt".
func compareNames(a, b string) int {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		ca, cb := ar[i], br[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na := strings.TrimLeft(string(ar[si:i]), "0")
			nb := strings.TrimLeft(string(br[sj:j]), "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}

		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		i++
		j++
	}

	switch {
	case i < len(ar):
		return 1
	case j < len(br):
		return -1
	default:
		// Names that differ only in case or zero padding get a stable
		// order from the raw comparison.
		return strings.Compare(a, b)
	}
}
