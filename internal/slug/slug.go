// Package slug derives unique URL-safe identifiers from display names.
package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"catalog-service/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSuffix bounds the -N probing loop
const maxSuffix = 10000

var pattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ErrExhausted is returned when every suffix up to maxSuffix is taken
var ErrExhausted = errors.New("slug suffixes exhausted")

// ExistsFunc reports whether candidate is already used by another record of the same kind.
// Implementations must exclude the record being updated.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Normalize folds name to lower-case ASCII, collapses every run of spaces and
// punctuation into a single hyphen and truncates the result to maxLen.
func Normalize(name string, maxLen int) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			if gap && b.Len() > 0 {
				b.WriteByte('-')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}

	return truncate(strings.Trim(b.String(), "_"), maxLen)
}

// Generate returns the normalized slug for name, or the first free "-N" variant of it.
func Generate(ctx context.Context, kind models.EntityKind, name string, exists ExistsFunc) (string, error) {
	maxLen := kind.SlugMaxLength()
	base := Normalize(name, maxLen)
	if base == "" {
		return "", &models.EmptyNameError{Kind: kind, Field: SourceField(kind)}
	}

	candidate := base
	for n := 1; n <= maxSuffix; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}

		suffix := "-" + strconv.Itoa(n)
		candidate = truncate(base, maxLen-len(suffix)) + suffix
	}

	return "", fmt.Errorf("%s %q: %w", kind, base, ErrExhausted)
}

// Validate checks a manually supplied slug
func Validate(kind models.EntityKind, s string) error {
	if len(s) > kind.SlugMaxLength() {
		return &models.InvalidFieldError{
			Field:  "slug",
			Reason: fmt.Sprintf("too long (max %d characters)", kind.SlugMaxLength()),
		}
	}
	if !pattern.MatchString(s) {
		return &models.InvalidFieldError{
			Field:  "slug",
			Reason: fmt.Sprintf("%q must consist of lowercase letters, numbers, underscores or hyphens", s),
		}
	}
	return nil
}

// SourceField names the field a kind's slug is derived from
func SourceField(kind models.EntityKind) string {
	if kind == models.KindAttributeValue {
		return "value"
	}
	return "name"
}

func truncate(s string, n int) string {
	if n < 1 {
		return ""
	}
	if len(s) > n {
		s = s[:n]
	}
	return strings.TrimRight(s, "-")
}
