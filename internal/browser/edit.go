package browser

import (
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/validation"
)

// EditKind identifies what an inline edit will do on commit.
type EditKind string

const (
	EditCreateFile EditKind = "create_file"
	EditCreateDir  EditKind = "create_dir"
	EditRename     EditKind = "rename"
)

// inlineEdit is the single shared name-edit slot. The committing flag and
// done channel give commits run-once semantics: the first commit claims the
// slot and every concurrent commit waits on done for the same result.
type inlineEdit struct {
	side         Side
	kind         EditKind
	targetDir    string // create: directory receiving the new entry
	targetPath   string // rename: path being renamed
	originalName string // rename: name before editing
	draft        string

	committing bool
	done       chan struct{} // closed when the in-flight commit resolves
	err        error         // valid once done is closed
}

// EditView is a read-only snapshot of the active edit.
type EditView struct {
	Side         Side
	Kind         EditKind
	Draft        string
	OriginalName string
	Committing   bool
}

func (e *inlineEdit) view() EditView {
	return EditView{
		Side:         e.side,
		Kind:         e.kind,
		Draft:        e.draft,
		OriginalName: e.originalName,
		Committing:   e.committing,
	}
}

func validateEntryName(name string) error {
	if err := validation.ValidateEntryName(name); err != nil {
		return protocol.Errorf(protocol.CodeInvalidName, "browser.edit", name, "%v", err)
	}
	return nil
}
