// Package cli runs an interactive line console.
// With terminal stdin it uses go-prompt with completion,
// otherwise every stdin line is executed in order, useful for scripts and tests.
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

type ExecFunc func(line string)

// Suggestions are offered for the first word only.
func MainLoop(tag string, exec ExecFunc, suggest []prompt.Suggest) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		complete := func(d prompt.Document) []prompt.Suggest {
			before := d.TextBeforeCursor()
			if strings.Contains(before, " ") {
				return nil
			}
			return prompt.FilterHasPrefix(suggest, d.GetWordBeforeCursor(), true)
		}
		prompt.New(func(line string) { exec(strings.TrimSpace(line)) }, complete,
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionTitle(tag),
		).Run()
		return nil
	}
	return ReadLines(os.Stdin, exec)
}

// ReadLines executes each non-empty trimmed line from r.
func ReadLines(r io.Reader, exec ExecFunc) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		exec(line)
	}
	return scanner.Err()
}
