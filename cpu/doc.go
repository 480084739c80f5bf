// Package cpu implements the Minimal Machine (MIMA) and its assembler.
//
// The machine has a 24-bit accumulator, an instruction address register
// (IAR), a halt flag and 2^20 cells of 24-bit memory. Each instruction is
// a single word: a 4-bit opcode and a 20-bit operand, or, when the 4-bit
// opcode is 0xF, an 8-bit opcode and a 16-bit operand.
//
// The assembler places declared variables at address 0 onward, followed
// by the instructions; the image start address is the variable count.
// Symbolic operands resolve to variables first, and for JMP and JMN to
// labels second.
package cpu
