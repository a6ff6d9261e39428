package task

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scry-notes/internal/domain"
)

// Common errors
var (
	ErrNilProvider = errors.New("provider cannot be nil")
	ErrNilPrompts  = errors.New("prompts cannot be nil")
	ErrNilCache    = errors.New("cache cannot be nil")
	ErrNilStore    = errors.New("artifact store cannot be nil")
	ErrNilLogger   = errors.New("logger cannot be nil")
)

// StageError attributes a pipeline failure to the stage that produced it.
type StageError struct {
	Stage domain.Stage
	Err   error
}

// Error formats the failure as "<stage> stage failed: <cause>".
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *StageError) Unwrap() error {
	return e.Err
}

// stageOf returns the stage recorded in err, or fallback.
func stageOf(err error, fallback domain.Stage) domain.Stage {
	var se *StageError
	if errors.As(err, &se) && se.Stage != domain.StageNone {
		return se.Stage
	}
	return fallback
}
