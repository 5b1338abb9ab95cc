package wheel

import (
	"regexp"
	"strings"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces     = regexp.MustCompile(`\s+`)
	slugDashes     = regexp.MustCompile(`-+`)
	slugPattern    = regexp.MustCompile(`^[a-z0-9-]+$`)
)

const minSlugLength = 3

// NormalizeSlug 把任意输入转换成URL安全的slug，例如 " Spring Fair 2025! " -> "spring-fair-2025"
func NormalizeSlug(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	s = slugDisallowed.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// validateSlug 检查已规范化的slug
func validateSlug(slug string) error {
	if len(slug) < minSlugLength {
		return &ValidationError{Message: "Slug must be at least 3 characters"}
	}
	if !slugPattern.MatchString(slug) {
		return &ValidationError{Message: "Slug may only contain lowercase letters, numbers, and hyphens"}
	}
	return nil
}
