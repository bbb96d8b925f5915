// Package patch injects directive lines into a build-configuration file
// right after an anchor literal.
//
// The transformation is purely textual. It never parses the configuration
// language, which keeps it independent of the build tool but makes the
// anchor load-bearing: it must occur exactly once.
package patch

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrAnchorNotFound is returned when the anchor does not occur.
	ErrAnchorNotFound = errors.New("anchor not found")

	// ErrAnchorAmbiguous is returned when the anchor occurs more than once,
	// or when the directives already follow it from an earlier application.
	ErrAnchorAmbiguous = errors.New("anchor ambiguous")
)

// Apply returns text with directives inserted after anchor, one per line.
// Everything else is left byte-identical. The inserted lines use "\r\n"
// when the line holding the anchor does.
func Apply(text, anchor string, directives []string) (string, error) {
	if anchor == "" {
		return "", fmt.Errorf("%w: empty anchor", ErrAnchorNotFound)
	}
	switch n := strings.Count(text, anchor); {
	case n == 0:
		return "", fmt.Errorf("%w: %q", ErrAnchorNotFound, anchor)
	case n > 1:
		return "", fmt.Errorf("%w: %q occurs %d times", ErrAnchorAmbiguous, anchor, n)
	}

	i := strings.Index(text, anchor) + len(anchor)
	head, tail := text[:i], text[i:]
	nl := lineEnding(tail)
	block := nl + strings.Join(directives, nl)
	if strings.HasPrefix(tail, block) {
		return "", fmt.Errorf("%w: %q is already followed by the directives", ErrAnchorAmbiguous, anchor)
	}
	return head + block + tail, nil
}

// lineEnding reports the line terminator used right after the anchor.
func lineEnding(tail string) string {
	if eol := strings.IndexByte(tail, '\n'); eol > 0 && tail[eol-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// File applies the patch to the file at path in place, keeping its mode.
// On error the file is left untouched.
func File(path, anchor string, directives []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := Apply(string(data), anchor, directives)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return os.WriteFile(path, []byte(out), info.Mode().Perm())
}
