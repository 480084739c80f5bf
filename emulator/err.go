package emulator

import (
	"errors"

	"github.com/ezrec/mima/cpu"
	"github.com/ezrec/mima/translate"
)

var f = translate.From

var (
	ErrStepLimit = errors.New(f("step limit reached"))
	ErrNoImage   = cpu.ErrNoImage
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	LineNo int
	Err    error
}

func (err *ErrRuntime) Error() string {
	return f("line %d %v", err.LineNo, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
