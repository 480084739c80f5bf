package cpu

import (
	"bufio"
	"bytes"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Image is an assembled program: variable cells followed by code words.
type Image struct {
	Words []uint32 // Memory contents, starting at address 0.
	Start uint32   // Address of the first instruction; equals the variable count.
	Lines []int    // Source line of each word, if known.
}

// LineNo returns the source line that produced the word at addr, or 0.
func (img *Image) LineNo(addr uint32) int {
	if int(addr) >= len(img.Lines) {
		return 0
	}
	return img.Lines[addr]
}

// Variables returns the variable cells.
func (img *Image) Variables() []uint32 {
	start := min(int(img.Start), len(img.Words))
	return img.Words[:start]
}

// Commands iterates over the decoded code region. Undecodable words
// stop the iteration.
func (img *Image) Commands() iter.Seq2[uint32, Command] {
	return func(yield func(addr uint32, cmd Command) bool) {
		for n := int(img.Start); n < len(img.Words); n++ {
			cmd, ok := Decode(img.Words[n])
			if !ok {
				return
			}
			if !yield(uint32(n), cmd) {
				return
			}
		}
	}
}

// MarshalText writes the image as a '.start' header followed by one
// hexadecimal word per line.
func (img *Image) MarshalText() (text []byte, err error) {
	var buff bytes.Buffer

	fmt.Fprintf(&buff, ".start %d\n", img.Start)
	for n, word := range img.Words {
		if n >= int(img.Start) {
			if cmd, ok := Decode(word); ok {
				fmt.Fprintf(&buff, "%06x ; %v\n", word, cmd)
				continue
			}
		}
		fmt.Fprintf(&buff, "%06x\n", word)
	}

	text = buff.Bytes()
	return
}

// UnmarshalText reads the format written by MarshalText.
func (img *Image) UnmarshalText(text []byte) (err error) {
	scanner := bufio.NewScanner(bytes.NewReader(text))

	var lineno int
	var line string
	var started bool

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	img.Words = img.Words[:0]
	img.Lines = nil
	img.Start = 0

	for scanner.Scan() {
		lineno++
		line = strings.TrimSpace(strings.Split(scanner.Text(), ";")[0])
		if len(line) == 0 {
			continue
		}

		if !started {
			start, ok := strings.CutPrefix(line, ".start")
			if !ok {
				err = ErrImageStart
				return
			}
			start = strings.TrimSpace(start)
			var v64 uint64
			v64, err = parseNumber(start)
			if err != nil {
				err = ErrParseNumber(start)
				return
			}
			img.Start = uint32(v64)
			started = true
			continue
		}

		var v64 uint64
		v64, err = strconv.ParseUint(line, 16, 32)
		if err != nil {
			err = ErrParseNumber(line)
			return
		}
		if v64 >= VALUE_SIZE {
			err = ErrValueRange
			return
		}
		img.Words = append(img.Words, uint32(v64))
	}

	line = ""
	if err = scanner.Err(); err != nil {
		return
	}

	if !started {
		err = ErrImageStart
		return
	}

	if len(img.Words) > MEMORY_SIZE || int(img.Start) > len(img.Words) {
		err = ErrImageSize
		return
	}

	return
}
