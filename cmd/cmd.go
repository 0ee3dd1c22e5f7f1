// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements shell commands for the inspection of UEFI services,
// see package shell for the terminal handling.
package cmd

import (
	"errors"

	"github.com/usbarmory/go-efi/uefi"
)

// Banner represents the shell welcome message.
var Banner string

// UEFI represents the UEFI services instance used by commands, it must be set
// before starting the shell.
var UEFI *uefi.Services

// Variables, when set, overrides the variable services of the UEFI services
// instance (e.g. with an emulated variable store).
var Variables *uefi.VariableServices

var errNoServices = errors.New("UEFI services are not available")

func services() (*uefi.Services, error) {
	if UEFI == nil || UEFI.SystemTable == nil {
		return nil, errNoServices
	}

	return UEFI, nil
}

func bootServices() (*uefi.BootServices, error) {
	s, err := services()

	if err != nil {
		return nil, err
	}

	if !s.Boot.Lifetime().Valid() {
		return nil, uefi.ErrBootServicesExited
	}

	return s.Boot, nil
}

func runtimeServices() (*uefi.RuntimeServices, error) {
	s, err := services()

	if err != nil {
		return nil, err
	}

	return s.Runtime, nil
}

func variables() (*uefi.VariableServices, error) {
	if Variables != nil {
		return Variables, nil
	}

	rt, err := runtimeServices()

	if err != nil {
		return nil, err
	}

	return &rt.VariableServices, nil
}
