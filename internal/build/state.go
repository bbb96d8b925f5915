package build

import (
	"errors"
	"fmt"

	"github.com/goplus/llrecipe/internal/collect"
	"github.com/goplus/llrecipe/internal/patch"
	"github.com/goplus/llrecipe/internal/vcs"
	"github.com/goplus/llrecipe/pkgs/buildsys/cmake"
)

// State is a step of the recipe lifecycle.
type State int

const (
	Pending State = iota
	Fetched
	Patched
	Built
	Collected
	Published
	Failed
)

var stateNames = [...]string{
	Pending:   "pending",
	Fetched:   "fetched",
	Patched:   "patched",
	Built:     "built",
	Collected: "collected",
	Published: "published",
	Failed:    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// kinds lists the stage errors a StageError can carry as its Kind.
var kinds = []error{
	vcs.ErrSourceFetchFailed,
	patch.ErrAnchorNotFound,
	patch.ErrAnchorAmbiguous,
	cmake.ErrConfigureFailed,
	cmake.ErrCompileFailed,
	collect.ErrArtifactsMissing,
}

// StageError reports the stage a run failed to reach.
//
// Kind is one of the stage sentinel errors, or nil when the failure is an
// environment problem such as an unwritable output directory.
type StageError struct {
	Stage State
	Kind  error
	Err   error
}

func newStageError(stage State, err error) *StageError {
	e := &StageError{Stage: stage, Err: err}
	for _, k := range kinds {
		if errors.Is(err, k) {
			e.Kind = k
			break
		}
	}
	return e
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
