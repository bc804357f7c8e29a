package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is swapped out in tests so they never touch a terminal.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// isTerminal reports whether stdin is interactive; passwords are read
// without echo only then.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (a *App) prompt(label string) (string, error) {
	if _, err := fmt.Fprint(a.out, label+": "); err != nil {
		return "", err
	}
	line, err := a.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) promptPassword(label string) (string, error) {
	if !isTerminal() {
		return a.prompt(label)
	}
	if _, err := fmt.Fprint(a.out, label+": "); err != nil {
		return "", err
	}
	pw, err := readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
