// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.


package ux

import (
	"errors"

	"github.com/charmbracelet/huh"
)

// ErrNotConfirmed is returned when the user declines a confirmation.
var ErrNotConfirmed = errors.New("not confirmed")

// Confirmer asks a yes/no question.
type Confirmer func(title, description string) (bool, error)

// HuhConfirm asks with an interactive huh form. It fails when stdin is not
// a terminal; callers offer a --yes flag for that case.
func HuhConfirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Confirm returns nil when skip is set or ask answers yes, and
// ErrNotConfirmed when it answers no.
func Confirm(ask Confirmer, skip bool, title, description string) error {
	if skip {
		return nil
	}
	ok, err := ask(title, description)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}
