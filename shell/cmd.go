// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"text/tabwriter"
)

// CmdFn represents a command handler, returning io.EOF terminates the
// session.
type CmdFn func(iface *Interface, arg []string) (res string, err error)

// Cmd represents a shell command.
type Cmd struct {
	// Name represents the command name, matched against the whole line
	// when Pattern is not set.
	Name string
	// Args represents the number of Pattern submatches passed to Fn.
	Args int
	// Pattern represents the command line syntax.
	Pattern *regexp.Regexp
	// Syntax represents the arguments description.
	Syntax string
	// Help represents the command description.
	Help string
	// Fn represents the command handler.
	Fn CmdFn
}

var cmds = make(map[string]*Cmd)

// Add registers a command, replacing any command with the same name.
func Add(cmd Cmd) {
	cmds[cmd.Name] = &cmd
}

// Remove unregisters a command.
func Remove(name string) {
	delete(cmds, name)
}

func sorted() (c []*Cmd) {
	var names []string

	for name := range cmds {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		c = append(c, cmds[name])
	}

	return
}

// Help returns a formatted list of all registered commands.
func Help(_ *Interface, _ []string) (string, error) {
	var buf bytes.Buffer

	t := tabwriter.NewWriter(&buf, 16, 8, 0, '\t', tabwriter.TabIndent)

	for _, cmd := range sorted() {
		fmt.Fprintf(t, "%s\t%s\t # %s\n", cmd.Name, cmd.Syntax, cmd.Help)
	}

	t.Flush()

	return buf.String(), nil
}
