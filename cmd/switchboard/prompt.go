package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// passphraseEnv lets scripts and service managers unlock the vault
// without a terminal.
const passphraseEnv = "SWITCHBOARD_VAULT_PASSPHRASE"

// Replaceable for testing.
var (
	getenv       = os.Getenv
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

// prompter reads answers line by line from one input, so consecutive
// prompts share buffered input.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
}

func newPrompter(in io.Reader) *prompter {
	return &prompter{in: in, reader: bufio.NewReader(in)}
}

// line prints prompt to w and returns the trimmed answer, or def when the
// answer is empty. An empty answer without a default is an error when
// required is set.
func (p *prompter) line(w io.Writer, prompt, def string, required bool) (string, error) {
	fmt.Fprint(w, prompt)
	text, err := p.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading input: %w", err)
		}
		// A last line without a newline still counts.
		if text == "" {
			return "", errors.New("reading input: unexpected end of input")
		}
	}
	val := strings.TrimSpace(text)
	if val == "" {
		if def != "" || !required {
			return def, nil
		}
		return "", errors.New("required value not provided")
	}
	return val, nil
}

// passphrase returns the vault passphrase from the environment, a
// terminal prompt without echo, or the next input line.
func (p *prompter) passphrase(w io.Writer, prompt string) (string, error) {
	if pass := getenv(passphraseEnv); pass != "" {
		return pass, nil
	}
	if f, ok := p.in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(w, prompt)
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if len(b) == 0 {
			return "", errors.New("passphrase cannot be empty")
		}
		return string(b), nil
	}
	pass, err := p.line(w, prompt, "", true)
	if err != nil {
		return "", fmt.Errorf("passphrase: %w", err)
	}
	return pass, nil
}
