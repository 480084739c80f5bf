// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"context"
	"io"
	"iter"
	"log"
	"maps"

	"github.com/ezrec/mima/cpu"
	"github.com/ezrec/mima/internal"
)

const (
	CANCEL_CHECK_TICKS = 4096 // Ticks between context checks in Run.
)

// Emulator state. Machine + loaded image.
type Emulator struct {
	Verbose  bool       // If set, enables verbose logging.
	*cpu.Cpu            // Reference to the machine simulation.
	Image    *cpu.Image // Reference to the currently loaded image.

	Limit int // Maximum ticks per Run; 0 is unlimited.

	predefine map[string]string
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Cpu: cpu.NewCpu(),
	}

	return
}

// Predefine sets an assembler equate used by Compile.
func (emu *Emulator) Predefine(equ string, value string) {
	if emu.predefine == nil {
		emu.predefine = map[string]string{equ: value}
	} else {
		emu.predefine[equ] = value
	}
}

// Defines returns an iterator over all of the defines. Machine defines
// take precedence over predefines of the same name.
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return maps.All(internal.Defines(maps.All(emu.predefine), emu.Cpu.Defines()))
}

// Compile assembles source text, with all defines predefined.
func (emu *Emulator) Compile(input io.Reader) (img *cpu.Image, err error) {
	asm := &cpu.Assembler{Verbose: emu.Verbose}
	for equ, value := range emu.Defines() {
		asm.Predefine(equ, value)
	}

	img, err = asm.Assemble(input)
	return
}

// Load installs an image, resetting the machine.
func (emu *Emulator) Load(img *cpu.Image) (err error) {
	emu.Cpu.Verbose = emu.Verbose

	err = emu.Cpu.Load(img)
	if err != nil {
		emu.Image = nil
		return
	}

	emu.Image = img
	return
}

// Reset reloads the current image.
func (emu *Emulator) Reset() (err error) {
	if emu.Image == nil {
		err = ErrNoImage
		return
	}

	err = emu.Load(emu.Image)
	return
}

// LineNo returns the source line number of the word at the instruction
// address, or 0 if unknown.
func (emu *Emulator) LineNo() int {
	if emu.Image == nil {
		return 0
	}

	return emu.Image.LineNo(emu.Cpu.Iar)
}

// Tick performs a single step of the machine. done is set once the
// machine has halted. A machine fault is reported as an ErrRuntime.
func (emu *Emulator) Tick() (done bool, err error) {
	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	lineno := emu.LineNo()

	emu.Cpu.Step()

	done = emu.Cpu.Halt
	if emu.Cpu.Fault != nil {
		err = &ErrRuntime{LineNo: lineno, Err: emu.Cpu.Fault}
	}

	return
}

// Run ticks until the machine halts, the tick limit is reached, or the
// context is done.
func (emu *Emulator) Run(ctx context.Context) (err error) {
	for ticks := 0; ; ticks++ {
		if emu.Limit > 0 && ticks >= emu.Limit {
			err = &ErrRuntime{LineNo: emu.LineNo(), Err: ErrStepLimit}
			return
		}

		if ticks%CANCEL_CHECK_TICKS == 0 {
			err = ctx.Err()
			if err != nil {
				return
			}
		}

		var done bool
		done, err = emu.Tick()
		if done || err != nil {
			if emu.Verbose {
				log.Printf("emulator: stopped after %d ticks", ticks+1)
			}
			return
		}
	}
}
