// Package workspace provides disposable job workspaces for Grove.
// This file defines the acquisition modes.
package workspace

// modeKind discriminates AcquireMode variants.
type modeKind int

const (
	modeNone modeKind = iota
	modeNewBranch
	modeExistingBranch
)

// AcquireMode selects how a workspace is checked out. Construct values with
// None, NewBranch, or ExistingBranch; the zero value is None.
type AcquireMode struct {
	kind   modeKind
	prefix string
	branch string
}

// None skips workspace creation entirely. Jobs in this mode run in the
// neutral scratch directory.
func None() AcquireMode {
	return AcquireMode{kind: modeNone}
}

// NewBranch creates a fresh uniquely named branch `<prefix>-<shortid>` from
// the project's base branch.
func NewBranch(prefix string) AcquireMode {
	return AcquireMode{kind: modeNewBranch, prefix: prefix}
}

// ExistingBranch checks out an already existing branch, failing with
// ErrBranchNotFound if it is absent locally and on origin.
func ExistingBranch(name string) AcquireMode {
	return AcquireMode{kind: modeExistingBranch, branch: name}
}

// IsNone reports whether the mode skips workspace creation.
func (m AcquireMode) IsNone() bool {
	return m.kind == modeNone
}
