/*
 * rv32g - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/rv32g/internal/cpu"
	"github.com/rcornwell/rv32g/internal/csr"
	"github.com/rcornwell/rv32g/internal/memory"
	hex "github.com/rcornwell/rv32g/util/hex"
	logger "github.com/rcornwell/rv32g/util/logger"
)

var Logger *slog.Logger

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func main() {
	optImage := getopt.StringLong("image", 'i', "", "Raw binary memory image to load at address 0")
	optEndPC := getopt.StringLong("end-pc", 'e', "0", "Program counter value that terminates the run")
	optResetPC := getopt.StringLong("reset-pc", 'r', "0", "Initial program counter")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Echo log output to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if optLogFile != nil && *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("rv32g simulator started")

	if optImage == nil || *optImage == "" {
		Logger.Error("Please specify --image")
		os.Exit(1)
	}

	image, err := os.ReadFile(*optImage)
	if err != nil {
		Logger.Error("reading image", "error", err)
		os.Exit(1)
	}

	endPC, err := parseUint32(*optEndPC)
	if err != nil {
		Logger.Error("parsing --end-pc", "error", err)
		os.Exit(1)
	}
	resetPC, err := parseUint32(*optResetPC)
	if err != nil {
		Logger.Error("parsing --reset-pc", "error", err)
		os.Exit(1)
	}

	mem := memory.New()
	mem.Load(image)

	hart := cpu.New(mem, Logger)
	hart.PC = resetPC
	hart.EndPC = endPC

	if err := hart.Run(); err != nil {
		Logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	dumpState(hart)
}

func dumpState(h *cpu.Hart) {
	var str strings.Builder
	for row := 0; row < 32; row += 4 {
		str.Reset()
		hex.FormatWord(&str, h.X[row:row+4])
		fmt.Printf("x%-2d-x%-2d = %s\n", row, row+3, str.String())
	}
	for row := 0; row < 32; row += 2 {
		str.Reset()
		hi := []uint32{uint32(h.F[row] >> 32), uint32(h.F[row]), uint32(h.F[row+1] >> 32), uint32(h.F[row+1])}
		hex.FormatWord(&str, hi)
		fmt.Printf("f%-2d-f%-2d = %s\n", row, row+1, str.String())
	}
	fflags, _ := h.CSRs.Read(csr.Fflags)
	fmt.Printf("fflags = %#x\n", fflags)
}
