package cpu

import (
	"errors"

	"github.com/ezrec/mima/translate"
)

var f = translate.From

var (
	// Machine errors
	ErrAddressRange = errors.New(f("address out of range"))
	ErrValueRange   = errors.New(f("value out of range"))
	ErrImageSize    = errors.New(f("image exceeds memory"))
	ErrNoImage      = errors.New(f("no image loaded"))
	ErrDecode       = errors.New(f("decode"))

	// Assembler errors
	ErrOperandRange = errors.New(f("operand out of range"))

	// Image file errors
	ErrImageStart = errors.New(f(".start missing"))
)

// ErrInvalidLine is a source line that is neither a declaration
// nor an instruction.
type ErrInvalidLine struct {
	LineNo int
	Line   string
}

func (err ErrInvalidLine) Error() string {
	return f("invalid instruction in line %d '%v'", err.LineNo, err.Line)
}

// ErrInvalidReference is a symbolic operand that names no variable,
// and for jumps, no label either.
type ErrInvalidReference struct {
	Index  int // Position of the command in the code region.
	LineNo int
	Name   string
}

func (err ErrInvalidReference) Error() string {
	return f("invalid reference '%v' in line %d", err.Name, err.LineNo)
}

type ErrUnknownVariable string

func (err ErrUnknownVariable) Error() string {
	return f("variable %v missing", string(err))
}

type ErrUnknownLabel string

func (err ErrUnknownLabel) Error() string {
	return f("label %v missing", string(err))
}

type ErrUnknownInstruction string

func (err ErrUnknownInstruction) Error() string {
	return f("instruction %v unknown", string(err))
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

// ErrSyntax locates an assembler error in the source text.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

// ErrFault is the reason the machine stopped without a HALT.
type ErrFault struct {
	Iar  uint32
	Word uint32
	Err  error
}

func (err ErrFault) Error() string {
	return f("fault at %#06x word %#06x %v", err.Iar, err.Word, err.Err)
}

func (err ErrFault) Unwrap() error {
	return err.Err
}
