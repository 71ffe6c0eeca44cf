package cmd

import (
	"errors"

	"github.com/charmbracelet/huh"
)

// checkFunc returns a user-facing message for an invalid value, or "".
type checkFunc func(string) string

// filterThreshold: enable type-to-filter only when there are more than this many options.
const filterThreshold = 5

// runForm shows fields in one group with the key hints visible.
func runForm(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true).Run()
}

func huhValidator(check checkFunc) func(string) error {
	return func(s string) error {
		if check == nil {
			return nil
		}
		if msg := check(s); msg != "" {
			return errors.New(msg)
		}
		return nil
	}
}

// promptString asks for one line of text. The form refuses to submit while
// check reports a problem, so the value returned is already valid.
func promptString(title, description string, check checkFunc) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		Description(description).
		Validate(huhValidator(check)).
		Value(&value)
	if err := runForm(inp); err != nil {
		return "", err
	}
	return value, nil
}

// promptPassword is promptString with hidden input.
func promptPassword(title, description string, check checkFunc) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		Description(description).
		EchoMode(huh.EchoModePassword).
		Validate(huhValidator(check)).
		Value(&value)
	if err := runForm(inp); err != nil {
		return "", err
	}
	return value, nil
}

// SelectOption represents a single option in a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

// promptSelect returns the value of the chosen option.
func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(i == defaultIdx)
	}
	sel := huh.NewSelect[T]().
		Title(title).
		Options(opts...).
		Filtering(len(options) > filterThreshold).
		Value(&value)
	if err := runForm(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptConfirm asks a yes/no question.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().
		Title(title).
		Affirmative("Sí").
		Negative("No").
		Value(&value)
	if err := runForm(c); err != nil {
		return false, err
	}
	return value, nil
}
