// Package pathname sanitizes user-provided names into filesystem-safe path
// segments and guards resolved paths against escaping their base directory.
package pathname

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const DefaultRoundPrefix = "assignment"

var (
	ErrInvalidName   = errors.New("name contains no usable characters")
	ErrPathTraversal = errors.New("path escapes the storage base directory")

	// roundNameRegex matches round directory names: <prefix>-NN (2+ digits).
	roundNameRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]+-[0-9]{2,}$`)
	numSuffixRegex  = regexp.MustCompile(`^[0-9]{2,}$`)
	replacedRunes   = ":*?\"<>|"
	separatorJoiner = "-"
)

// SanitizeName turns a free-text name (course, class, student, file name)
// into a single safe path segment. Path separators and reserved characters
// are replaced with underscores, null bytes and control characters dropped,
// whitespace runs collapsed. Non-ASCII letters are preserved.
func SanitizeName(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == 0 || unicode.IsControl(r):
			// dropped
		case r == '/' || r == '\\' || strings.ContainsRune(replacedRunes, r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	name := strings.Join(strings.Fields(b.String()), separatorJoiner)
	name = strings.TrimLeft(name, ".") // no dot-files; also kills "." and ".."
	name = strings.Trim(name, separatorJoiner+"_")
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// Result is the outcome of ValidatePath. It is a value, not a panic or a bare
// error, so callers can render a user-facing message from it.
type Result struct {
	Valid    bool
	Resolved string
	Err      error
}

// ValidatePath resolves candidate against baseDir and confirms the resolved
// path is baseDir itself or a descendant of it. Relative candidates are
// joined onto baseDir; absolute candidates must already live under it.
func ValidatePath(candidate, baseDir string) Result {
	if strings.ContainsRune(candidate, 0) {
		return Result{Err: ErrInvalidName}
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return Result{Err: errors.Wrap(err, "resolving base directory")}
	}
	base = filepath.Clean(base)

	resolved := candidate
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}
	resolved = filepath.Clean(resolved)

	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return Result{Resolved: resolved, Err: ErrPathTraversal}
	}
	return Result{Valid: true, Resolved: resolved}
}

// IsRoundName reports whether name follows the round directory convention.
func IsRoundName(name string) bool {
	return roundNameRegex.MatchString(name)
}

// RoundNumber extracts the numeric suffix of a round name for the given
// prefix. Names with a different prefix or a malformed suffix do not match.
func RoundNumber(prefix, name string) (int, bool) {
	if !strings.HasPrefix(name, prefix+"-") {
		return 0, false
	}
	suffix := name[len(prefix)+1:]
	if !numSuffixRegex.MatchString(suffix) {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextRoundName returns the next sequential round directory name after the
// current maximum for prefix. Gaps are never filled; numbering always
// appends. An empty existing set starts at <prefix>-01.
func NextRoundName(existing []string, prefix string) string {
	if prefix == "" {
		prefix = DefaultRoundPrefix
	}
	var max int
	for _, name := range existing {
		if n, ok := RoundNumber(prefix, name); ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%02d", prefix, max+1)
}

// SubmissionFileName derives the deterministic stored name for a student
// submission. The same student re-uploading the same file name yields the
// same result, which is what makes resubmission last-write-wins.
func SubmissionFileName(student, original string) (string, error) {
	s, err := SanitizeName(student)
	if err != nil {
		return "", errors.Wrap(err, "sanitizing student name")
	}
	o, err := SanitizeName(original)
	if err != nil {
		return "", errors.Wrap(err, "sanitizing file name")
	}
	return s + "__" + o, nil
}
