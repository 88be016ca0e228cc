package domain

import (
	"fmt"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// CommandKind is the closed set of development commands a job can carry.
// Each kind has a fixed branch policy and rules key; behavior is looked up
// through CommandSpec rather than string-branching at call sites.
type CommandKind string

// The full command set. Adding a kind requires a CommandSpec entry in
// commandSpecs; Spec() panics on an unknown kind to keep the set closed.
const (
	// CommandAsk answers a question about the codebase without mutating it.
	CommandAsk CommandKind = "ask"

	// CommandFeat implements a feature on a fresh branch.
	CommandFeat CommandKind = "feat"

	// CommandFix fixes a bug on a fresh branch.
	CommandFix CommandKind = "fix"

	// CommandPlan writes an implementation plan on a fresh branch.
	CommandPlan CommandKind = "plan"

	// CommandFeedback continues the most recent feat/fix/plan session on
	// its existing branch.
	CommandFeedback CommandKind = "feedback"

	// CommandInit primes a project: ensures the canonical clone exists
	// and the repository is ready for jobs.
	CommandInit CommandKind = "init"
)

// CommandSpec carries the per-kind orchestration policy.
type CommandSpec struct {
	// Kind is the command this spec describes.
	Kind CommandKind

	// BranchPrefix is the prefix for branches created by this kind.
	// Empty for kinds that never create a branch.
	BranchPrefix string

	// RulesKey selects the system-prompt rule text from configuration.
	RulesKey string

	// NeedsWorkspace reports whether the job runs inside a disposable
	// worktree. ask and init run without one.
	NeedsWorkspace bool

	// ResumesSession reports whether the job resumes a recorded session
	// branch instead of cutting a new one.
	ResumesSession bool

	// RecordsSession reports whether successful completion with committed
	// changes records a session link for later feedback.
	RecordsSession bool
}

// commandSpecs is the exhaustive policy table for every CommandKind.
//
//nolint:gochecknoglobals // Read-only lookup table
var commandSpecs = map[CommandKind]CommandSpec{
	CommandAsk: {
		Kind:     CommandAsk,
		RulesKey: "ask",
	},
	CommandFeat: {
		Kind:           CommandFeat,
		BranchPrefix:   "feat",
		RulesKey:       "feat",
		NeedsWorkspace: true,
		RecordsSession: true,
	},
	CommandFix: {
		Kind:           CommandFix,
		BranchPrefix:   "fix",
		RulesKey:       "fix",
		NeedsWorkspace: true,
		RecordsSession: true,
	},
	CommandPlan: {
		Kind:           CommandPlan,
		BranchPrefix:   "plan",
		RulesKey:       "plan",
		NeedsWorkspace: true,
		RecordsSession: true,
	},
	CommandFeedback: {
		Kind:           CommandFeedback,
		RulesKey:       "feedback",
		NeedsWorkspace: true,
		ResumesSession: true,
	},
	CommandInit: {
		Kind:     CommandInit,
		RulesKey: "init",
	},
}

// ParseCommandKind converts a string to a CommandKind.
// Returns ErrUnknownCommand for anything outside the closed set.
func ParseCommandKind(s string) (CommandKind, error) {
	kind := CommandKind(s)
	if _, ok := commandSpecs[kind]; !ok {
		return "", fmt.Errorf("%w: %q", groveerrors.ErrUnknownCommand, s)
	}
	return kind, nil
}

// Spec returns the orchestration policy for the kind.
// Panics on a kind outside the closed set; construct kinds through
// ParseCommandKind or the package constants.
func (k CommandKind) Spec() CommandSpec {
	spec, ok := commandSpecs[k]
	if !ok {
		panic(fmt.Sprintf("domain: no spec for command kind %q", k))
	}
	return spec
}

// Valid reports whether the kind is part of the closed set.
func (k CommandKind) Valid() bool {
	_, ok := commandSpecs[k]
	return ok
}

// String implements fmt.Stringer.
func (k CommandKind) String() string {
	return string(k)
}

// CommandKinds returns the closed set in stable order, for help output
// and validation messages.
func CommandKinds() []CommandKind {
	return []CommandKind{
		CommandAsk, CommandFeat, CommandFix,
		CommandPlan, CommandFeedback, CommandInit,
	}
}
