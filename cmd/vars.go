// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"

	"github.com/usbarmory/go-efi/shell"
	"github.com/usbarmory/go-efi/uefi"
)

func init() {
	shell.Add(shell.Cmd{
		Name:    "vars",
		Args:    1,
		Pattern: regexp.MustCompile(`^vars(?: (` + guidPattern + `))?$`),
		Syntax:  "(vendor GUID)?",
		Help:    "list UEFI variables",
		Fn:      varsCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "var",
		Args:    2,
		Pattern: regexp.MustCompile(`^var (\S+)(?: (` + guidPattern + `))?$`),
		Syntax:  "<name> (vendor GUID)?",
		Help:    "show UEFI variable",
		Fn:      varCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "setvar",
		Args:    4,
		Pattern: regexp.MustCompile(`^setvar (\S+) (` + guidPattern + `) ([[:xdigit:]]+) ([[:xdigit:]]*)$`),
		Syntax:  "<name> <vendor GUID> <hex attributes> <hex data>",
		Help:    "set UEFI variable",
		Fn:      setvarCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "delvar",
		Args:    2,
		Pattern: regexp.MustCompile(`^delvar (\S+)(?: (` + guidPattern + `))?$`),
		Syntax:  "<name> (vendor GUID)?",
		Help:    "delete UEFI variable",
		Fn:      delvarCmd,
	})

	shell.Add(shell.Cmd{
		Name: "varinfo",
		Help: "EFI_RUNTIME_SERVICES.QueryVariableInfo()",
		Fn:   varinfoCmd,
	})
}

// vendor returns the argument GUID, defaulting to the EFI global variable
// GUID.
func vendor(s string) uefi.GUID {
	if len(s) == 0 {
		return uefi.EFI_GLOBAL_VARIABLE_GUID
	}

	return uefi.MustParseGUID(s)
}

func varsCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	vs, err := variables()

	if err != nil {
		return
	}

	it := vs.Variables()

	for v := range it.All() {
		if len(arg[0]) > 0 && v.Vendor != vendor(arg[0]) {
			continue
		}

		fmt.Fprintf(&buf, "%s %s\n", v.Vendor, v.Name)
	}

	return buf.String(), it.Err()
}

func varCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	vs, err := variables()

	if err != nil {
		return
	}

	c, err := vs.GetVariable(arg[0], vendor(arg[1]))

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Attributes: %#x (%s)\n", uint32(c.Value.Attributes), c.Value.Attributes)
	fmt.Fprintf(&buf, "Size ......: %d\n", len(c.Value.Data))
	buf.WriteString(hex.Dump(c.Value.Data))

	return buf.String(), nil
}

func setvarCmd(_ *shell.Interface, arg []string) (res string, err error) {
	vs, err := variables()

	if err != nil {
		return
	}

	attr, err := strconv.ParseUint(arg[2], 16, 32)

	if err != nil {
		return "", fmt.Errorf("invalid attributes, %v", err)
	}

	data, err := hex.DecodeString(arg[3])

	if err != nil {
		return "", fmt.Errorf("invalid data, %v", err)
	}

	status, err := vs.SetVariable(arg[0], vendor(arg[1]), uefi.VariableAttributes(attr), data)

	return status.String(), err
}

func delvarCmd(_ *shell.Interface, arg []string) (res string, err error) {
	vs, err := variables()

	if err != nil {
		return
	}

	status, err := vs.DeleteVariable(arg[0], vendor(arg[1]))

	return status.String(), err
}

func varinfoCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	vs, err := variables()

	if err != nil {
		return
	}

	attr := uefi.EFI_VARIABLE_NON_VOLATILE | uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS | uefi.EFI_VARIABLE_RUNTIME_ACCESS
	c, err := vs.QueryVariableInfo(attr)

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Maximum Storage ......: %d\n", c.Value.MaximumVariableStorageSize)
	fmt.Fprintf(&buf, "Remaining Storage ....: %d\n", c.Value.RemainingVariableStorageSize)
	fmt.Fprintf(&buf, "Maximum Variable Size : %d\n", c.Value.MaximumVariableSize)

	return buf.String(), nil
}
