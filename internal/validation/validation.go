package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
)

// Title prefix pattern: the first [ up to the first ] after it
var titlePrefixPattern = regexp.MustCompile(`\[(.*?)\]`)

// MaxOutcomeLimit bounds the limit query parameter on outcome listings
const MaxOutcomeLimit = 1000

// Validator provides validation methods
type Validator struct{}

// New creates a new validator instance
func New() *Validator {
	return &Validator{}
}

// ExtractPrefix returns the trimmed text inside the first bracket pair of a
// pull request title. Titles without a bracket pair yield NO_PREFIX_FOUND.
func (v *Validator) ExtractPrefix(title string) (string, *errors.AppError) {
	match := titlePrefixPattern.FindStringSubmatch(title)
	if match == nil {
		return "", errors.NoPrefixFound(title)
	}

	return strings.TrimSpace(match[1]), nil
}

// ValidatePrefix rejects prefixes that would resolve outside the template
// directory or cannot name a file at all.
func (v *Validator) ValidatePrefix(prefix string) *errors.AppError {
	if prefix == "" {
		return errors.InvalidPrefix(prefix, "prefix is empty")
	}

	if strings.ContainsAny(prefix, `/\`) {
		return errors.InvalidPrefix(prefix, "prefix contains a path separator")
	}

	if strings.Contains(prefix, "..") {
		return errors.InvalidPrefix(prefix, "prefix contains a parent directory sequence")
	}

	if strings.ContainsRune(prefix, 0) {
		return errors.InvalidPrefix(prefix, "prefix contains a null byte")
	}

	return nil
}

// ParseLimit returns the limit query parameter, or def when it is empty
func (v *Validator) ParseLimit(limit string, def int) (int, *errors.AppError) {
	if limit == "" {
		return def, nil
	}

	n, err := strconv.Atoi(limit)
	if err != nil {
		return 0, errors.ValidationError("Invalid limit parameter: must be a whole number")
	}
	if n < 1 || n > MaxOutcomeLimit {
		return 0, errors.ValidationError(fmt.Sprintf("Invalid limit parameter: must be between 1 and %d", MaxOutcomeLimit))
	}
	return n, nil
}
