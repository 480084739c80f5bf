package cpu

import (
	"fmt"
	"strings"
)

// Machine word geometry.
const (
	MEMORY_SIZE = 1 << 20 // Number of addressable memory cells.
	VALUE_SIZE  = 1 << 24 // Exclusive upper bound of a memory cell value.

	VALUE_MASK = VALUE_SIZE - 1 // All-ones word, the EQL 'true' pattern.
	VALUE_SIGN = VALUE_SIZE >> 1 // Words at or above this are negative.

	OPERAND_MASK     = 0xfffff // Operand field of a standard opcode.
	OPERAND_EXT_MASK = 0xffff  // Operand field of an extended opcode.

	opcodeEscape = 0xf // Standard opcode field value selecting the extended family.
)

// Instruction is a machine operation kind. The value is its opcode: the
// standard family uses 0x0-0xe, the extended family 0xf0-0xff.
type Instruction uint8

const (
	LDC  = Instruction(0x0)  // accu := operand
	LDV  = Instruction(0x1)  // accu := mem[operand]
	STV  = Instruction(0x2)  // mem[operand] := accu
	ADD  = Instruction(0x3)  // accu := accu + mem[operand]
	AND  = Instruction(0x4)  // accu := accu & mem[operand]
	OR   = Instruction(0x5)  // accu := accu | mem[operand]
	XOR  = Instruction(0x6)  // accu := accu ^ mem[operand]
	EQL  = Instruction(0x7)  // accu := (accu == mem[operand]) ? -1 : 0
	JMP  = Instruction(0x8)  // iar := operand
	JMN  = Instruction(0x9)  // iar := operand, if accu < 0
	LDIV = Instruction(0xa)  // accu := mem[mem[operand]]
	STIV = Instruction(0xb)  // mem[mem[operand]] := accu
	HALT = Instruction(0xf0) // stop
	NOT  = Instruction(0xf1) // accu := ^accu
	RAR  = Instruction(0xf2) // accu := accu rotated right by one
)

// instructionName maps every known instruction to its mnemonic.
var instructionName = map[Instruction]string{
	LDC:  "LDC",
	LDV:  "LDV",
	STV:  "STV",
	ADD:  "ADD",
	AND:  "AND",
	OR:   "OR",
	XOR:  "XOR",
	EQL:  "EQL",
	JMP:  "JMP",
	JMN:  "JMN",
	LDIV: "LDIV",
	STIV: "STIV",
	HALT: "HALT",
	NOT:  "NOT",
	RAR:  "RAR",
}

// mnemonicMap maps upper case mnemonics to instructions.
var mnemonicMap = map[string]Instruction{
	"HLT": HALT,
}

func init() {
	for ins, name := range instructionName {
		mnemonicMap[name] = ins
	}
}

// ParseInstruction looks up a mnemonic, ignoring case.
func ParseInstruction(name string) (ins Instruction, ok bool) {
	ins, ok = mnemonicMap[strings.ToUpper(name)]
	return
}

// Valid returns true if the instruction has a known opcode.
func (ins Instruction) Valid() bool {
	_, ok := instructionName[ins]
	return ok
}

// Extended returns true if the instruction uses the 8-bit opcode family.
func (ins Instruction) Extended() bool {
	return (ins >> 4) == opcodeEscape
}

// OperandMask returns the mask of the operand field for this instruction.
func (ins Instruction) OperandMask() uint32 {
	if ins.Extended() {
		return OPERAND_EXT_MASK
	}
	return OPERAND_MASK
}

// Jump returns true for the control transfer instructions.
func (ins Instruction) Jump() bool {
	return ins == JMP || ins == JMN
}

func (ins Instruction) String() string {
	name, ok := instructionName[ins]
	if !ok {
		return fmt.Sprintf("Instruction(%#x)", uint8(ins))
	}
	return name
}

// Command is an instruction with its operand.
type Command struct {
	Instruction Instruction
	Value       uint32
}

// Decode unpacks a machine word. ok is false when the word is out of
// range or carries an unknown opcode.
func Decode(word uint32) (cmd Command, ok bool) {
	if word >= VALUE_SIZE {
		return
	}

	ins := Instruction(word >> 20)
	value := word & OPERAND_MASK
	if ins == opcodeEscape {
		ins = Instruction(word >> 16)
		value = word & OPERAND_EXT_MASK
	}

	if !ins.Valid() {
		return
	}

	cmd = Command{Instruction: ins, Value: value}
	ok = true
	return
}

// Encode packs the command into a machine word. Operand bits that do not
// fit the instruction's operand field are dropped.
func (cmd Command) Encode() uint32 {
	ins := cmd.Instruction
	if ins.Extended() {
		return (uint32(ins) << 16) | (cmd.Value & OPERAND_EXT_MASK)
	}
	return (uint32(ins&0xf) << 20) | (cmd.Value & OPERAND_MASK)
}

// String returns the assembly language representation of the command.
func (cmd Command) String() string {
	if cmd.Instruction.Extended() && cmd.Value == 0 {
		return cmd.Instruction.String()
	}
	return fmt.Sprintf("%v %#x", cmd.Instruction, cmd.Value)
}
