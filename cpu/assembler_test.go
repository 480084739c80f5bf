package cpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func enc(ins Instruction, value uint32) uint32 {
	return Command{Instruction: ins, Value: value}.Encode()
}

func TestAssembler(t *testing.T) {
	assert := assert.New(t)

	img, err := Compile("")
	assert.NoError(err)
	assert.Equal(0, len(img.Words))
	assert.Equal(uint32(0), img.Start)
}

func TestAssemblerAdd(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		"; Add two numbers to a third address",
		"",
		"LDV a",
		"ADD b",
		"STV c",
		"HALT",
		"",
		"a: DS 22",
		"b: DS 20",
		"c: DS",
	}

	img, err := Compile(strings.Join(program, "\n"))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	expected := []uint32{
		22,
		20,
		0,
		enc(LDV, 0),
		enc(ADD, 1),
		enc(STV, 2),
		enc(HALT, 0),
	}

	assert.Equal(expected, img.Words)
	assert.Equal(uint32(3), img.Start)
	assert.Equal([]int{8, 9, 10, 3, 4, 5, 6}, img.Lines)
	assert.Equal([]uint32{22, 20, 0}, img.Variables())
}

func TestAssemblerLabels(t *testing.T) {
	assert := assert.New(t)

	// Count to 100
	program := []string{
		"one: DS 1",
		"max: DS 100",
		"counter: DS",
		"START: LDV one",
		"STV counter",
		"LOOP: LDV counter",
		"ADD one",
		"STV counter",
		"LDV max",
		"EQL counter",
		"JMN FINISH",
		"JMP LOOP",
		"FINISH: HALT",
	}

	img, err := Compile(strings.Join(program, "\n"))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	expected := []uint32{
		1,
		100,
		0,
		enc(LDV, 0),
		enc(STV, 2),
		enc(LDV, 2),
		enc(ADD, 0),
		enc(STV, 2),
		enc(LDV, 1),
		enc(EQL, 2),
		enc(JMN, 12),
		enc(JMP, 5),
		enc(HALT, 0),
	}

	assert.Equal(expected, img.Words)
	assert.Equal(uint32(3), img.Start)
}

func TestAssemblerLayout(t *testing.T) {
	assert := assert.New(t)

	table := []string{
		"HALT",
		"x: DS\nHALT",
		"LDC 1\nx: DS 5\nSTV x\ny: DS\nHALT",
		"a: DS\nb: DS\nc: DS",
	}

	for _, source := range table {
		asm := &Assembler{}
		parsed, err := asm.Parse(strings.NewReader(source))
		assert.NoError(err, source)

		img, err := asm.Generate(parsed)
		assert.NoError(err, source)

		assert.Equal(uint32(len(parsed.Variables)), img.Start, source)
		assert.Equal(len(parsed.Variables)+len(parsed.Statements), len(img.Words), source)
	}
}

func TestAssemblerParse(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		"   ; indented comment",
		"x: DS 0x10 ; inline comment",
		"y:DS",
		"  top:  ldc   7",
		"jmp top",
		"HLT",
	}

	asm := &Assembler{}
	parsed, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	assert.Equal([]Variable{
		{LineNo: 2, Name: "x", Value: 0x10, Set: true},
		{LineNo: 3, Name: "y"},
	}, parsed.Variables)

	assert.Equal([]Statement{
		{LineNo: 4, Line: "top:  ldc   7", Label: "top", Instruction: LDC,
			Operand: Operand{Kind: OPERAND_FIXED, Value: 7}},
		{LineNo: 5, Line: "jmp top", Instruction: JMP,
			Operand: Operand{Kind: OPERAND_REFERENCE, Name: "top"}},
		{LineNo: 6, Line: "HLT", Instruction: HALT},
	}, parsed.Statements)
}

func TestAssemblerNumbers(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		"a: DS 010",
		"b: DS 09",
		"c: ds 0x10",
		"d: Ds 0b11",
		"e: DS 0o17",
		"LDC 08",
		"LDC 010",
		"LDC 0",
	}

	img, err := Compile(strings.Join(program, "\n"))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	assert.Equal([]uint32{
		10,
		9,
		16,
		3,
		15,
		enc(LDC, 8),
		enc(LDC, 10),
		enc(LDC, 0),
	}, img.Words)
	assert.Equal(uint32(5), img.Start)
}

func TestAssemblerSystemEquates(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	asm.Predefine("VALUE_SIZE", "4")
	asm.Predefine("LINENO", "99")
	asm.Predefine("N", "5")

	img, err := asm.Assemble(strings.NewReader("LDC $(VALUE_SIZE >> 8)\nLDC $(LINENO + N)"))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	assert.Equal([]uint32{enc(LDC, VALUE_SIZE>>8), enc(LDC, 7)}, img.Words)
}

func TestAssemblerResolve(t *testing.T) {
	assert := assert.New(t)

	parsed := &ParsedProgram{
		Variables: []Variable{{Name: "a"}, {Name: "b"}},
		Statements: []Statement{
			{Instruction: LDV, Operand: Operand{Kind: OPERAND_REFERENCE, Name: "b"}},
			{Label: "here", Instruction: JMP, Operand: Operand{Kind: OPERAND_REFERENCE, Name: "here"}},
			{Instruction: LDV, Operand: Operand{Kind: OPERAND_REFERENCE, Name: "here"}},
			{Instruction: JMN, Operand: Operand{Kind: OPERAND_REFERENCE, Name: "nowhere"}},
			{Instruction: LDC, Operand: Operand{Kind: OPERAND_FIXED, Value: 9}},
			{Instruction: NOT},
		},
	}

	addr, err := parsed.ResolveVariable("b")
	assert.NoError(err)
	assert.Equal(uint32(1), addr)

	_, err = parsed.ResolveVariable("c")
	assert.Equal(ErrUnknownVariable("c"), err)

	pos, err := parsed.ResolveLabel("here")
	assert.NoError(err)
	assert.Equal(uint32(1), pos)

	_, err = parsed.ResolveLabel("a")
	assert.Equal(ErrUnknownLabel("a"), err)

	value, err := parsed.Resolve(0)
	assert.NoError(err)
	assert.Equal(uint32(1), value)

	// Labels are offset by the variable region.
	value, err = parsed.Resolve(1)
	assert.NoError(err)
	assert.Equal(uint32(3), value)

	// Labels are invisible to non-jumps.
	_, err = parsed.Resolve(2)
	assert.Equal(ErrInvalidReference{Index: 2, Name: "here"}, err)

	_, err = parsed.Resolve(3)
	assert.Equal(ErrUnknownLabel("nowhere"), err)

	value, err = parsed.Resolve(4)
	assert.NoError(err)
	assert.Equal(uint32(9), value)

	value, err = parsed.Resolve(5)
	assert.NoError(err)
	assert.Equal(uint32(0), value)

	_, err = parsed.Resolve(6)
	assert.Equal(ErrInvalidReference{Index: 6}, err)

	_, err = parsed.Resolve(-1)
	assert.Equal(ErrInvalidReference{Index: -1}, err)
}

func TestAssemblerVariablePrecedence(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		"other: DS",
		"loop: DS 7",
		"loop: JMP loop",
		"JMN loop",
	}

	img, err := Compile(strings.Join(program, "\n"))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	// 'loop' is both variable 1 and label 2; the variable wins.
	assert.Equal(enc(JMP, 1), img.Words[2])
	assert.Equal(enc(JMN, 1), img.Words[3])
}

func TestAssemblerExpression(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		"top: DS $(VALUE_SIZE - 1)",
		"LDC $(6 * 7)",
		"LDC $(LINENO)",
		"LDC $(SIZE + 1)",
	}

	asm := &Assembler{}
	asm.Predefine("SIZE", "0x10")
	img, err := asm.Assemble(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
		return
	}

	assert.Equal([]uint32{
		VALUE_MASK,
		enc(LDC, 42),
		enc(LDC, 3),
		enc(LDC, 17),
	}, img.Words)
}

func TestAssemblerErrors(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		prog   string
		lineno int
		err    error
	}){
		{"LDV a\n+++", 2, ErrInvalidLine{LineNo: 2, Line: "+++"}},
		{"a: DS x", 1, ErrInvalidLine{LineNo: 1, Line: "a: DS x"}},
		{"LDV 12ab", 1, ErrInvalidLine{LineNo: 1, Line: "LDV 12ab"}},
		{"LDV a b", 1, ErrInvalidLine{LineNo: 1, Line: "LDV a b"}},
		{"FOO 1", 1, ErrUnknownInstruction("FOO")},
		{"x: DS\nLDV y", 2, ErrInvalidReference{Index: 0, LineNo: 2, Name: "y"}},
		{"HALT\nJMP nowhere", 2, ErrUnknownLabel("nowhere")},
		{"a: DS 16777216", 1, ErrValueRange},
		{"LDC 0x100000", 1, ErrOperandRange},
		{"HALT 0x10000", 1, ErrOperandRange},
		{"LDC 99999999999", 1, ErrOperandRange},
		{"LDC $(1 +)", 1, ErrParseExpression("1 +")},
		{"LDC $(-1)", 1, ErrParseExpression("-1")},
	}

	for _, entry := range table {
		_, err := Compile(entry.prog)
		assert.Error(err, entry.prog)

		var se *ErrSyntax
		assert.True(errors.As(err, &se), entry.prog)
		if se != nil {
			assert.Equal(entry.lineno, se.LineNo, entry.prog)
		}
		assert.ErrorIs(err, entry.err, entry.prog)
	}
}
