// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !tamago

// The nvshell tool runs the UEFI variable commands of the go-efi shell over
// an emulated variable store persisted in a file, to prepare or inspect
// variable sets away from the target.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"golang.org/x/term"

	"github.com/usbarmory/go-efi/cmd"
	"github.com/usbarmory/go-efi/nvram"
	"github.com/usbarmory/go-efi/shell"
)

type conn struct {
	io.Reader
	io.Writer
}

func main() {
	var opts nvram.Options

	path := flag.String("f", "nvram.db", "variable store path")
	flag.Uint64Var(&opts.MaxStorage, "s", nvram.DefaultMaxStorage, "maximum variable storage size")
	flag.Uint64Var(&opts.MaxVariableSize, "v", nvram.DefaultMaxVariableSize, "maximum variable size")
	flag.Parse()

	log.SetFlags(0)
	opts.Logger = log.Default()

	store, err := nvram.Open(*path, opts)

	if err != nil {
		log.Fatalf("could not open %s, %v", *path, err)
	}
	defer store.Close()

	cmd.Variables = store.Services()

	iface := &shell.Interface{
		Banner:     fmt.Sprintf("%s/%s (%s) • NVRAM %s", runtime.GOOS, runtime.GOARCH, runtime.Version(), *path),
		ReadWriter: conn{os.Stdin, os.Stdout},
		VT100:      true,
	}

	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)

		if err != nil {
			log.Fatal(err)
		}
		defer term.Restore(fd, state)
	} else {
		iface.VT100 = false
	}

	iface.Start()
}
