// Package secret resolves operator secrets from the environment or an
// interactive terminal prompt.
package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoSecret is returned when the variable is unset and no terminal is
// attached.
var ErrNoSecret = errors.New("secret: not provided")

// Source lazily resolves a secret from an environment variable or by
// prompting on the terminal. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar string
	label  string
	prompt bool

	lookup     func(string) (string, bool)
	isTerminal func() bool
	read       func() ([]byte, error)
	out        io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar first. When prompt is set and stdin is a terminal
// the operator is asked for label without echo.
func NewSource(envVar, label string, prompt bool) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		label:      label,
		prompt:     prompt,
		lookup:     os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(fd) },
		read:       func() ([]byte, error) { return term.ReadPassword(fd) },
		out:        os.Stderr,
	}
}

// Get returns the cached secret or resolves it on first use. Whitespace-only
// values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		if !s.prompt || !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("%w: set %s", ErrNoSecret, s.envVar)
			} else {
				s.err = ErrNoSecret
			}
			return
		}

		fmt.Fprintf(s.out, "Enter %s: ", s.label)
		raw, err := s.read()
		fmt.Fprintln(s.out)
		if err != nil {
			s.err = fmt.Errorf("read %s: %w", s.label, err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = fmt.Errorf("%s cannot be empty", s.label)
			return
		}
		s.value = string(raw)
	})
	return s.value, s.err
}
