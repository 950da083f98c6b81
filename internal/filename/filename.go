// Package filename names backup files.
package filename

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

const (
	// Extension is appended to every backup file name.
	Extension = ".json"
	maxLabel  = 64
)

// Generator produces names of the form <label>-<reason>-<YYYY-MM-DD>-<HHMMSS>.json.
type Generator struct {
	clock    clockwork.Clock
	label    string
	location *time.Location
}

// NewGenerator creates a generator; label is used when no user prefix is set.
func NewGenerator(label string, clock clockwork.Clock) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	label = Sanitize(label)
	if label == "" {
		label = "memo-calendar"
	}
	return &Generator{clock: clock, label: label, location: time.Local}
}

// WithLocation sets the time zone timestamps are rendered in.
func (g *Generator) WithLocation(loc *time.Location) *Generator {
	g.location = loc
	return g
}

// Generate builds a file name for reason. A non-blank prefix replaces the label.
func (g *Generator) Generate(reason, prefix string) string {
	label := g.label
	if p := Sanitize(prefix); p != "" {
		label = p
	}
	now := g.clock.Now().In(g.location)
	return fmt.Sprintf("%s-%s-%s%s", label, reason, now.Format("2006-01-02-150405"), Extension)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize strips diacritics and replaces every character outside
// [A-Za-z0-9._-] with a dash, collapsing runs and trimming the ends.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if stripped, _, err := transform.String(stripMarks, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	lastDash := false
	for _, r := range s {
		ok := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-')
		if !ok || r == '-' {
			if !lastDash {
				b.WriteByte('-')
			}
			lastDash = true
			continue
		}
		b.WriteRune(r)
		lastDash = false
	}
	out := strings.Trim(b.String(), "-.")
	if len(out) > maxLabel {
		out = strings.TrimRight(out[:maxLabel], "-.")
	}
	return out
}

// Override validates a caller-supplied file name and appends the extension when missing.
func Override(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.MalformedRequestError("file name must not be empty").Build()
	}
	if strings.ContainsAny(name, `/\`) || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.MalformedRequestError(fmt.Sprintf("invalid file name %q", name)).
			WithContext("file_name", name).
			Build()
	}
	base := strings.TrimSuffix(name, Extension)
	clean := Sanitize(base)
	if clean == "" {
		return "", errors.MalformedRequestError(fmt.Sprintf("invalid file name %q", name)).
			WithContext("file_name", name).
			Build()
	}
	return clean + Extension, nil
}
