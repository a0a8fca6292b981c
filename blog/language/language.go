// Package language holds the dialect rules used to match requested language
// codes against the files a post actually has.
package language

import (
	"slices"
	"strings"
)

// Base returns the base code of a dialect ("en-US" -> "en").
func Base(code string) string {
	code = strings.ReplaceAll(code, "_", "-")
	if base, _, ok := strings.Cut(code, "-"); ok {
		return strings.ToLower(base)
	}
	return strings.ToLower(code)
}

// IsBase reports whether code is a bare two-letter base code.
func IsBase(code string) bool {
	return len(code) == 2 && !strings.ContainsAny(code, "-_")
}

// Resolve maps a requested language onto one of the available file
// languages. An exact match wins; a base code matches any dialect sharing
// that base; a dialect falls back to its base and retries the dialect search.
// The second return value is false when nothing matched.
func Resolve(requested string, available []string) (string, bool) {
	if requested == "" {
		return "", false
	}
	if slices.Contains(available, requested) {
		return requested, true
	}
	if IsBase(requested) {
		return dialectOf(requested, available)
	}
	base := Base(requested)
	if slices.Contains(available, base) {
		return base, true
	}
	return dialectOf(base, available)
}

func dialectOf(base string, available []string) (string, bool) {
	for _, lang := range available {
		if Base(lang) == base {
			return lang, true
		}
	}
	return "", false
}

// Priority builds the ordered candidate list [resolved, primary, ...available],
// de-duplicated and restricted to available languages.
func Priority(resolved, primary string, available []string) []string {
	ordered := make([]string, 0, len(available)+2)
	seen := make(map[string]bool, len(available)+2)
	push := func(lang string) {
		if lang == "" || seen[lang] || !slices.Contains(available, lang) {
			return
		}
		seen[lang] = true
		ordered = append(ordered, lang)
	}

	push(resolved)
	push(primary)
	for _, lang := range available {
		push(lang)
	}
	return ordered
}

// Candidates resolves requested against available and returns the
// priority list in one step.
func Candidates(requested, primary string, available []string) []string {
	resolved, _ := Resolve(requested, available)
	return Priority(resolved, primary, available)
}

// Canonical returns the externally visible code for a file language: the
// bare base code when at most one dialect of that base is enabled, the full
// dialect otherwise.
func Canonical(fileLanguage string, enabled []string) string {
	base := Base(fileLanguage)
	dialects := 0
	for _, lang := range enabled {
		if Base(lang) == base && !IsBase(lang) {
			dialects++
		}
	}
	if dialects > 1 {
		return fileLanguage
	}
	return base
}

// Dedupe keeps the first occurrence of every code.
func Dedupe(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
