package cli

import (
	"fmt"
	"strings"

	"golang.org/x/term"
)

func isTerminal(fd int) bool { return term.IsTerminal(fd) }

// readPassword reads a password with masking on a terminal and falls back to
// a plain line otherwise (pipes, tests). Only the line terminator is removed;
// spaces are part of the password.
func (p *prompter) readPassword(prompt string) (string, error) {
	fd, ok := p.terminal()
	if !ok {
		line, ok := p.line(prompt)
		if !ok {
			return "", fmt.Errorf("no password given")
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(p.out)
	return strings.TrimRight(string(b), "\r\n"), nil
}

// withRawMode runs fn with the terminal in raw mode and restores it after.
func withRawMode(fd int, fn func() error) error {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, old)
	return fn()
}
