package secret

import (
	"bytes"
	"errors"
	"testing"
)

func testSource(env map[string]string, terminal bool, typed string) *Source {
	s := NewSource("TEST_SECRET", "api secret", true)
	s.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.read = func() ([]byte, error) { return []byte(typed), nil }
	s.out = &bytes.Buffer{}
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := testSource(map[string]string{"TEST_SECRET": "from-env"}, true, "typed")
	got, err := s.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := testSource(map[string]string{"TEST_SECRET": "  "}, true, "typed")
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank variable")
	}
}

func TestSourcePromptsOnTerminal(t *testing.T) {
	s := testSource(nil, true, "typed")
	got, err := s.Get()
	if err != nil || got != "typed" {
		t.Fatalf("got %q, %v", got, err)
	}
	s.read = func() ([]byte, error) { return nil, errors.New("should be cached") }
	if again, err := s.Get(); err != nil || again != "typed" {
		t.Fatalf("expected cached value, got %q, %v", again, err)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	s := testSource(nil, false, "typed")
	if _, err := s.Get(); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
