package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassPhrase prompts on stderr and reads a pass phrase without echo
// when stdin is a terminal. Piped input is read one line at a time.
func (c *commandContext) readPassPhrase(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	in := cmd.InOrStdin()
	if file, ok := in.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		phrase, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read pass phrase: %w", err)
		}
		return strings.TrimSpace(string(phrase)), nil
	}

	if c.stdin == nil {
		c.stdin = bufio.NewReader(in)
	}
	line, err := c.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read pass phrase: %w", err)
	}
	phrase := strings.TrimSpace(line)
	if phrase == "" {
		return "", fmt.Errorf("pass phrase is required")
	}
	return phrase, nil
}
