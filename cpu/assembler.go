// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// OperandKind is how an instruction operand was written.
type OperandKind int

const (
	OPERAND_NONE      = OperandKind(0) // No operand; assembles as 0.
	OPERAND_FIXED     = OperandKind(1) // Numeric literal.
	OPERAND_REFERENCE = OperandKind(2) // Variable or label name.
)

// Operand of a parsed instruction line.
type Operand struct {
	Kind  OperandKind
	Value uint32 // Literal value for OPERAND_FIXED.
	Name  string // Symbol for OPERAND_REFERENCE.
}

// Variable is a 'name: DS [value]' declaration.
type Variable struct {
	LineNo int
	Name   string
	Value  uint32
	Set    bool // False if declared without an initial value.
}

// Statement is a parsed instruction line.
type Statement struct {
	LineNo      int
	Line        string
	Label       string // Optional label bound to this statement.
	Instruction Instruction
	Operand     Operand
}

// ParsedProgram is the output of the first assembler pass.
type ParsedProgram struct {
	Variables  []Variable  // In declaration order; variable n lives at address n.
	Statements []Statement // In source order; statement n lives at len(Variables)+n.
}

// Predefined system equates, visible in $(...) expressions.
var sysEquate = map[string]string{
	"LINENO":      "0",
	"MEMORY_SIZE": fmt.Sprintf("%#v", MEMORY_SIZE),
	"VALUE_SIZE":  fmt.Sprintf("%#v", VALUE_SIZE),
	"TRUE":        fmt.Sprintf("%#v", VALUE_MASK),
	"SIGN":        fmt.Sprintf("%#v", VALUE_SIGN),
}

const symbolPattern = `[A-Za-z_][A-Za-z0-9_]*`

var (
	symbolRegex      = regexp.MustCompile(`^` + symbolPattern + `$`)
	variableRegex    = regexp.MustCompile(`^(` + symbolPattern + `):\s*(?i:DS)(?:\s+(\S+))?$`)
	instructionRegex = regexp.MustCompile(`^(?:(` + symbolPattern + `):)?\s*([A-Za-z]+)(?:\s+(\S+))?$`)
	expressionRegex  = regexp.MustCompile(`\$\([^\$]*\)`)
)

// Assembler translates MIMA assembly text into an Image.
//
// Source lines are either variable declarations ('name: DS [value]') or
// instructions ('[label:] MNEMONIC [operand]'). Text after ';' is a
// comment. $(...) is replaced by the value of the enclosed Starlark
// expression before the line is classified.
type Assembler struct {
	Verbose bool // If set, verbosely logs the assembler actions.

	predefine map[string]string // Predefines
	Equate    map[string]string // Map of equates visible to $(...).
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// parseNumber parses a non-negative integer. Words are decimal unless
// they carry a 0x, 0b or 0o prefix; a leading zero is not octal.
func parseNumber(word string) (value uint64, err error) {
	base := 10
	if len(word) > 2 && word[0] == '0' {
		switch word[1] {
		case 'x', 'X', 'b', 'B', 'o', 'O':
			base = 0
		}
	}

	value, err = strconv.ParseUint(word, base, 32)
	return
}

// valueOf returns the value of a numeric word.
func (asm *Assembler) valueOf(word string) (value uint32, err error) {
	v64, err := parseNumber(word)
	if errors.Is(err, strconv.ErrRange) {
		err = ErrOperandRange
		return
	}
	if err != nil {
		err = ErrParseNumber(word)
		return
	}

	value = uint32(v64)
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint32, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		var value32 uint32
		value32, err = asm.valueOf(str)
		if err != nil {
			// Ignore non-integer equates.
			err = nil
			continue
		}
		pred[key] = starlark.MakeInt(int(value32))
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok || st_int64 < 0 || st_int64 > 0xffffffff {
		err = ErrParseExpression(expr)
		return
	}
	value = uint32(st_int64)
	return
}

// expand strips comments and evaluates $(...) expressions.
func (asm *Assembler) expand(text string, lineno int) (line string, err error) {
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	line, _, _ = strings.Cut(text, ";")
	line = strings.TrimSpace(line)

	line = expressionRegex.ReplaceAllStringFunc(line, func(str string) string {
		expr := str[2 : len(str)-1]
		value, _err := asm.parenEval(expr)
		if _err != nil {
			err = errors.Join(ErrParseExpression(expr), _err)
		}
		return fmt.Sprintf("%d", value)
	})

	return
}

// parseOperand classifies an instruction operand token.
func (asm *Assembler) parseOperand(word string) (op Operand, err error) {
	if len(word) == 0 {
		return
	}

	if symbolRegex.MatchString(word) {
		op = Operand{Kind: OPERAND_REFERENCE, Name: word}
		return
	}

	value, err := asm.valueOf(word)
	if err != nil {
		return
	}

	op = Operand{Kind: OPERAND_FIXED, Value: value}
	return
}

// parseLine classifies a single expanded source line.
func (asm *Assembler) parseLine(parsed *ParsedProgram, line string, lineno int) (err error) {
	if match := variableRegex.FindStringSubmatch(line); match != nil {
		v := Variable{LineNo: lineno, Name: match[1]}
		if len(match[2]) != 0 {
			v.Value, err = asm.valueOf(match[2])
			if _, ok := err.(ErrParseNumber); ok {
				err = ErrInvalidLine{LineNo: lineno, Line: line}
			}
			if err != nil {
				return
			}
			if v.Value >= VALUE_SIZE {
				err = ErrValueRange
				return
			}
			v.Set = true
		}
		parsed.Variables = append(parsed.Variables, v)
		return
	}

	match := instructionRegex.FindStringSubmatch(line)
	if match == nil {
		err = ErrInvalidLine{LineNo: lineno, Line: line}
		return
	}

	ins, ok := ParseInstruction(match[2])
	if !ok {
		err = ErrUnknownInstruction(match[2])
		return
	}

	operand, err := asm.parseOperand(match[3])
	if _, ok := err.(ErrParseNumber); ok {
		err = ErrInvalidLine{LineNo: lineno, Line: line}
	}
	if err != nil {
		return
	}

	parsed.Statements = append(parsed.Statements, Statement{
		LineNo:      lineno,
		Line:        line,
		Label:       match[1],
		Instruction: ins,
		Operand:     operand,
	})

	return
}

// Parse is the first assembler pass: it splits the input into variable
// declarations and instruction statements.
func (asm *Assembler) Parse(input io.Reader) (parsed *ParsedProgram, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int

	defer func() {
		if err != nil {
			parsed = nil
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	// System equates cannot be redefined.
	asm.Equate = maps.Clone(asm.predefine)
	if asm.Equate == nil {
		asm.Equate = make(map[string]string, len(sysEquate))
	}
	maps.Copy(asm.Equate, sysEquate)

	parsed = &ParsedProgram{}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		line, err = asm.expand(text, lineno)
		if err != nil {
			return
		}

		if len(line) == 0 {
			continue
		}

		err = asm.parseLine(parsed, line, lineno)
		if err != nil {
			return
		}
	}

	line = ""
	err = scanner.Err()

	return
}

// ResolveVariable returns the address of a declared variable.
func (parsed *ParsedProgram) ResolveVariable(name string) (addr uint32, err error) {
	for n, v := range parsed.Variables {
		if v.Name == name {
			addr = uint32(n)
			return
		}
	}

	err = ErrUnknownVariable(name)
	return
}

// ResolveLabel returns the position of the first statement carrying the
// label, relative to the start of the code region.
func (parsed *ParsedProgram) ResolveLabel(name string) (pos uint32, err error) {
	for n, stmt := range parsed.Statements {
		if stmt.Label == name {
			pos = uint32(n)
			return
		}
	}

	err = ErrUnknownLabel(name)
	return
}

// Resolve returns the operand value of statement n. Variables take
// precedence over labels; labels are only visible to JMP and JMN.
func (parsed *ParsedProgram) Resolve(n int) (value uint32, err error) {
	if n < 0 || n >= len(parsed.Statements) {
		err = ErrInvalidReference{Index: n}
		return
	}

	stmt := parsed.Statements[n]

	switch stmt.Operand.Kind {
	case OPERAND_NONE:
		return
	case OPERAND_FIXED:
		value = stmt.Operand.Value
		return
	}

	name := stmt.Operand.Name
	value, err = parsed.ResolveVariable(name)
	if err == nil {
		return
	}

	if !stmt.Instruction.Jump() {
		err = ErrInvalidReference{Index: n, LineNo: stmt.LineNo, Name: name}
		return
	}

	pos, err := parsed.ResolveLabel(name)
	if err != nil {
		return
	}

	value = uint32(len(parsed.Variables)) + pos
	return
}

// Generate is the second assembler pass: it lays out the variables
// followed by the encoded statements.
func (asm *Assembler) Generate(parsed *ParsedProgram) (img *Image, err error) {
	vars := len(parsed.Variables)
	size := vars + len(parsed.Statements)
	if size > MEMORY_SIZE {
		err = ErrImageSize
		return
	}

	img = &Image{
		Words: make([]uint32, 0, size),
		Lines: make([]int, 0, size),
		Start: uint32(vars),
	}

	for _, v := range parsed.Variables {
		// Unset variables are zero.
		img.Words = append(img.Words, v.Value)
		img.Lines = append(img.Lines, v.LineNo)
	}

	for n, stmt := range parsed.Statements {
		var value uint32
		value, err = parsed.Resolve(n)
		if err == nil && (value & ^stmt.Instruction.OperandMask()) != 0 {
			err = ErrOperandRange
		}
		if err != nil {
			img = nil
			err = &ErrSyntax{LineNo: stmt.LineNo, Line: stmt.Line, Err: err}
			return
		}

		cmd := Command{Instruction: stmt.Instruction, Value: value}
		if asm.Verbose {
			log.Printf("%06x: %v", vars+n, cmd)
		}

		img.Words = append(img.Words, cmd.Encode())
		img.Lines = append(img.Lines, stmt.LineNo)
	}

	return
}

// Assemble parses and generates an image from the input.
func (asm *Assembler) Assemble(input io.Reader) (img *Image, err error) {
	parsed, err := asm.Parse(input)
	if err != nil {
		return
	}

	img, err = asm.Generate(parsed)
	return
}

// Compile assembles source text with a default assembler.
func Compile(source string) (img *Image, err error) {
	asm := &Assembler{}
	return asm.Assemble(strings.NewReader(source))
}
