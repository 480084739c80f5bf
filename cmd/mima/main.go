// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/ezrec/mima/cpu"
	"github.com/ezrec/mima/emulator"
)

func main() {
	var compile string
	var image string
	var save string
	var limit int
	var dump bool
	var verbose bool

	emu := emulator.NewEmulator()

	flag.StringVar(&compile, "c", "", ".mima file to compile")
	flag.StringVar(&image, "l", "", "image file to load")
	flag.StringVar(&save, "s", "", "save image to file, do not execute")
	flag.IntVar(&limit, "n", 0, "maximum instructions to execute (0 is unlimited)")
	flag.BoolVar(&dump, "m", false, "print non-zero memory cells after execution")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.Func("D", "predefine NAME=VALUE for $(...) expressions", func(arg string) error {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			value = "1"
		}
		emu.Predefine(name, value)
		return nil
	})

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	emu.Verbose = verbose
	emu.Limit = limit

	img := &cpu.Image{}

	switch {
	case len(compile) != 0:
		// Compile a new instruction stream.
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		img, err = emu.Compile(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
	case len(image) != 0:
		text, err := os.ReadFile(image)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}

		err = img.UnmarshalText(text)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
	default:
		log.Fatalf("%v: one of -c or -l is required", os.Args[0])
	}

	if len(save) != 0 {
		text, err := img.MarshalText()
		if err != nil {
			log.Fatalf("%v: %v", save, err)
		}
		err = os.WriteFile(save, text, 0o644)
		if err != nil {
			log.Fatalf("%v: %v", save, err)
		}
		return
	}

	err := emu.Load(img)
	if err != nil {
		log.Fatalf("%v: %v", os.Args[0], err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = emu.Run(ctx)

	fmt.Print(emu.Cpu.String())
	if dump {
		for addr, value := range emu.MemoryDump() {
			if value != 0 {
				fmt.Printf("%06x: %06x\n", addr, value)
			}
		}
	}

	if err != nil {
		log.Fatal(err)
	}
}
