// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/usbarmory/go-efi/cmd"
	"github.com/usbarmory/go-efi/shell"
	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/x64"
)

// set at build time
var (
	Build    string
	Revision string
)

func init() {
	log.SetFlags(0)

	cmd.Banner = fmt.Sprintf("%s/%s (%s) • UEFI %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(), Revision, Build)
}

func main() {
	logFile, _ := os.OpenFile("/runtime.log", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	cmd.UEFI = x64.UEFI

	iface := &shell.Interface{
		Banner:     cmd.Banner,
		Log:        logFile,
		ReadWriter: x64.UEFI.Console,
	}

	iface.Start()

	log.Print("exit")

	if x64.UEFI.Runtime == nil {
		return
	}

	if err := x64.UEFI.Runtime.ResetSystem(uefi.EfiResetShutdown, uefi.EFI_SUCCESS, nil); err != nil {
		log.Printf("halt error, %v", err)
	}
}
