package cpu

import (
	"fmt"
	"iter"
	"log"
	"maps"
	"math/bits"
)

var _cpu_defines = map[string]string{
	"MEMORY_SIZE": fmt.Sprintf("%v", MEMORY_SIZE),
	"VALUE_SIZE":  fmt.Sprintf("%v", VALUE_SIZE),
	"TRUE":        fmt.Sprintf("0x%x", VALUE_MASK),
	"SIGN":        fmt.Sprintf("0x%x", VALUE_SIGN),
}

// Snapshot is the register state of the machine.
type Snapshot struct {
	Accu  uint32 // Accumulator.
	Iar   uint32 // Instruction address register.
	Halt  bool   // Set once the machine has stopped.
	Fault error  // Why the machine stopped, if not by HALT.
}

// Cpu is the simulation context for the minimal machine.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Accu  uint32 // Accumulator.
	Iar   uint32 // Instruction address register.
	Halt  bool   // Halt flag.
	Fault error  // Set with Halt when execution stopped on a bad word or address.

	Ticks int // Executed instruction counter.

	memory []uint32
}

// NewCpu creates a new machine with zeroed memory.
func NewCpu() (cpu *Cpu) {
	cpu = &Cpu{
		memory: make([]uint32, MEMORY_SIZE),
	}

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	regs := []string{"accu", "iar", "halt", "fault", "ticks"}
	for _, reg := range regs {
		var strval string
		switch reg {
		case "accu":
			strval = fmt.Sprintf("%02X_%04X", cpu.Accu>>16, cpu.Accu&0xffff)
		case "iar":
			strval = fmt.Sprintf("%01X_%04X", cpu.Iar>>16, cpu.Iar&0xffff)
		case "halt":
			strval = fmt.Sprintf("%v", cpu.Halt)
		case "fault":
			strval = "-"
			if cpu.Fault != nil {
				strval = cpu.Fault.Error()
			}
		case "ticks":
			strval = fmt.Sprintf("%d", cpu.Ticks)
		}
		text += fmt.Sprintf("% 5s: %v\n", reg, strval)
	}

	return
}

// Reset the CPU state.
// - Clears the registers and the halt flag.
// - Zeros all of memory.
// - Zeros statistics counters.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.Accu = 0
	cpu.Iar = 0
	cpu.Halt = false
	cpu.Fault = nil
	cpu.Ticks = 0
	clear(cpu.memory)
}

// Load resets the machine, copies the image to address 0, and sets the
// instruction address to the image start. On error the machine is left
// reset.
func (cpu *Cpu) Load(img *Image) (err error) {
	cpu.Reset()

	if img == nil {
		err = ErrNoImage
		return
	}

	if len(img.Words) > len(cpu.memory) || img.Start >= MEMORY_SIZE {
		err = ErrImageSize
		return
	}

	for _, word := range img.Words {
		if word >= VALUE_SIZE {
			err = ErrValueRange
			return
		}
	}

	copy(cpu.memory, img.Words)
	cpu.Iar = img.Start

	if cpu.Verbose {
		log.Printf("cpu: loaded %d words, start %#x", len(img.Words), img.Start)
	}

	return
}

// Read returns the value at addr.
func (cpu *Cpu) Read(addr uint32) (value uint32, err error) {
	if addr >= MEMORY_SIZE {
		err = ErrAddressRange
		return
	}

	value = cpu.memory[addr]
	return
}

// Write stores value at addr.
func (cpu *Cpu) Write(addr uint32, value uint32) (err error) {
	if addr >= MEMORY_SIZE {
		err = ErrAddressRange
		return
	}
	if value >= VALUE_SIZE {
		err = ErrValueRange
		return
	}

	cpu.memory[addr] = value
	return
}

// MemoryDump returns a copy of all of memory.
func (cpu *Cpu) MemoryDump() (dump []uint32) {
	dump = make([]uint32, len(cpu.memory))
	copy(dump, cpu.memory)
	return
}

// DebugSnapshot returns the register state.
func (cpu *Cpu) DebugSnapshot() Snapshot {
	return Snapshot{
		Accu:  cpu.Accu,
		Iar:   cpu.Iar,
		Halt:  cpu.Halt,
		Fault: cpu.Fault,
	}
}

// fault stops the machine, leaving all other registers untouched.
func (cpu *Cpu) fault(word uint32, err error) {
	cpu.Halt = true
	cpu.Fault = ErrFault{Iar: cpu.Iar, Word: word, Err: err}

	if cpu.Verbose {
		log.Printf("cpu: %v", cpu.Fault)
	}
}

// FetchCode fetches and decodes the instruction at the instruction
// address.
func (cpu *Cpu) FetchCode() (cmd Command, word uint32, err error) {
	if cpu.Iar >= MEMORY_SIZE {
		err = ErrAddressRange
		return
	}

	word = cpu.memory[cpu.Iar]

	cmd, ok := Decode(word)
	if !ok {
		err = ErrDecode
		return
	}

	return
}

// Step executes a single instruction. It does nothing once halted.
// Undecodable words and out of range addresses halt the machine and
// record the Fault instead of returning an error.
func (cpu *Cpu) Step() {
	if cpu.Halt {
		return
	}

	cmd, word, err := cpu.FetchCode()
	if err != nil {
		cpu.fault(word, err)
		return
	}

	err = cpu.Execute(cmd)
	if err != nil {
		cpu.fault(word, err)
		return
	}
}

// Run steps until the machine halts. A program that never halts never
// returns.
func (cpu *Cpu) Run() {
	for !cpu.Halt {
		cpu.Step()
	}
}

// load reads memory for an instruction, with an address range check.
func (cpu *Cpu) load(addr uint32) (value uint32, err error) {
	if addr >= MEMORY_SIZE {
		err = ErrAddressRange
		return
	}
	value = cpu.memory[addr]
	return
}

// store writes memory for an instruction, with an address range check.
func (cpu *Cpu) store(addr uint32, value uint32) (err error) {
	if addr >= MEMORY_SIZE {
		err = ErrAddressRange
		return
	}
	cpu.memory[addr] = value & VALUE_MASK
	return
}

// Execute executes a single decoded instruction. Registers and memory
// are only modified if no error is returned.
func (cpu *Cpu) Execute(cmd Command) (err error) {
	if cpu.Verbose {
		log.Printf("%06x: %v", cpu.Iar, cmd)
	}

	next_iar := cpu.Iar + 1
	accu := cpu.Accu
	arg := cmd.Value

	switch cmd.Instruction {
	case LDC:
		accu = arg
	case LDV:
		accu, err = cpu.load(arg)
	case STV:
		err = cpu.store(arg, accu)
	case ADD, AND, OR, XOR, EQL:
		var value uint32
		value, err = cpu.load(arg)
		if err == nil {
			accu = cpu.doAlu(cmd.Instruction, accu, value)
		}
	case JMP:
		next_iar = arg
	case JMN:
		if accu >= VALUE_SIGN {
			next_iar = arg
		}
	case LDIV:
		var addr uint32
		addr, err = cpu.load(arg)
		if err == nil {
			accu, err = cpu.load(addr)
		}
	case STIV:
		var addr uint32
		addr, err = cpu.load(arg)
		if err == nil {
			err = cpu.store(addr, accu)
		}
	case NOT, RAR:
		accu = cpu.doAlu(cmd.Instruction, accu, 0)
	case HALT:
		cpu.Halt = true
		if cpu.Verbose {
			log.Printf("cpu: halt")
		}
	default:
		err = ErrDecode
	}

	if err != nil {
		return
	}

	cpu.Accu = accu
	cpu.Ticks += 1

	if !cpu.Halt {
		cpu.Iar = next_iar
	}

	return
}

// doAlu performs the requested ALU action, and returns the output value.
// Results are truncated to the word size.
func (cpu *Cpu) doAlu(op Instruction, input uint32, value uint32) (output uint32) {
	switch op {
	case ADD:
		// Wraps; there is no carry.
		output = input + value
	case AND:
		output = input & value
	case OR:
		output = input | value
	case XOR:
		output = input ^ value
	case EQL:
		if input == value {
			output = VALUE_MASK
		}
	case NOT:
		output = ^input
	case RAR:
		// Rotate within 24 bits: move bit 0 to bit 23.
		output = (input >> 1) | ((input & 1) << (bits.Len32(VALUE_MASK) - 1))
	}

	return output & VALUE_MASK
}
