package cli

import (
	"fmt"
	"io"
	"strings"
)

// confirmer asks y/N on the prompter. With yes set it never asks.
type confirmer struct {
	p   *prompter
	yes bool
}

func (c confirmer) Confirm(prompt string) bool {
	if c.yes {
		return true
	}
	answer, ok := c.p.line(prompt + " [y/N]: ")
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// notifier prints transient messages on their own line.
type notifier struct {
	out io.Writer
}

func (n notifier) Notify(kind, message string) {
	mark := "•"
	switch kind {
	case "success":
		mark = "✔"
	case "error":
		mark = "✖"
	}
	fmt.Fprintf(n.out, "%s %s\n", mark, message)
}
