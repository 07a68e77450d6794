package sandbox

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/isdmx/coderunner/config"
)

var (
	// ErrUnsupportedLanguage is returned for a language with no command policy.
	// Its text is what callers see in the failed ExecutionResult.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrInvalidEntryPath is returned for an entry path that is missing,
	// absolute or outside the project.
	ErrInvalidEntryPath = errors.New("invalid entry path")
)

// Command template placeholders.
const (
	EntryPlaceholder      = "{entry}"
	SourceRootPlaceholder = "{source_root}"
)

// Language ids with a built-in policy.
const (
	LanguageJava       = "java"
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
	LanguageCSharp     = "csharp"
)

// LanguagePolicy maps a language to the shell command that builds and runs a
// project. Template is expanded with the entry path and the entry's source
// root, both relative to the container working directory.
type LanguagePolicy struct {
	Name      string
	Template  string
	UsesEntry bool
}

// DefaultLanguagePolicies returns the built-in language policies.
func DefaultLanguagePolicies() []LanguagePolicy {
	return []LanguagePolicy{
		{Name: LanguageJava, Template: "javac {entry} && java -cp {source_root} Main", UsesEntry: true},
		{Name: LanguagePython, Template: "python3 {entry}", UsesEntry: true},
		{Name: LanguageJavaScript, Template: "node {entry}", UsesEntry: true},
		// dotnet discovers the project file in the working directory.
		{Name: LanguageCSharp, Template: "dotnet run", UsesEntry: false},
	}
}

// CommandResolver turns a language and an entry path into a shell command.
// Language ids are matched case-insensitively.
type CommandResolver struct {
	policies map[string]LanguagePolicy
}

// NewCommandResolver creates a resolver from the given policies. A later
// policy replaces an earlier one with the same name.
func NewCommandResolver(policies ...LanguagePolicy) *CommandResolver {
	r := &CommandResolver{policies: make(map[string]LanguagePolicy, len(policies))}
	for _, p := range policies {
		p.Name = normalizeLanguage(p.Name)
		r.policies[p.Name] = p
	}
	return r
}

// NewCommandResolverFromConfig creates a resolver with the built-in policies
// overlaid by the configured languages. A template that mentions a
// placeholder always takes the entry path, whatever uses_entry says.
func NewCommandResolverFromConfig(cfg *config.Config) *CommandResolver {
	policies := DefaultLanguagePolicies()

	names := make([]string, 0, len(cfg.Languages))
	for name := range cfg.Languages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lang := cfg.Languages[name]
		policies = append(policies, LanguagePolicy{
			Name:      name,
			Template:  lang.Command,
			UsesEntry: lang.UsesEntry || hasPlaceholder(lang.Command),
		})
	}
	return NewCommandResolver(policies...)
}

// Languages returns the supported language ids, sorted.
func (r *CommandResolver) Languages() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether language has a policy.
func (r *CommandResolver) Supports(language string) bool {
	_, ok := r.policies[normalizeLanguage(language)]
	return ok
}

// Resolve returns the shell command for running entryPath, a slash-separated
// path relative to the project root, with the given language.
func (r *CommandResolver) Resolve(language, entryPath string) (string, error) {
	policy, ok := r.policies[normalizeLanguage(language)]
	if !ok {
		return "", ErrUnsupportedLanguage
	}

	if !policy.UsesEntry {
		return policy.Template, nil
	}

	entry, err := cleanEntryPath(entryPath)
	if err != nil {
		return "", err
	}

	replacer := strings.NewReplacer(
		EntryPlaceholder, shellQuote(entry),
		SourceRootPlaceholder, shellQuote(path.Dir(entry)),
	)
	return replacer.Replace(policy.Template), nil
}

func hasPlaceholder(template string) bool {
	return strings.Contains(template, EntryPlaceholder) || strings.Contains(template, SourceRootPlaceholder)
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

// cleanEntryPath normalizes an entry path and rejects one that is empty,
// absolute or escapes the project root.
func cleanEntryPath(entryPath string) (string, error) {
	slashed := strings.ReplaceAll(strings.TrimSpace(entryPath), `\`, "/")
	if slashed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryPath)
	}
	if strings.HasPrefix(slashed, "/") || strings.ContainsRune(slashed, '\x00') {
		return "", fmt.Errorf("%w: %s", ErrInvalidEntryPath, entryPath)
	}

	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidEntryPath, entryPath)
	}
	return clean, nil
}

// shellQuote leaves plain paths untouched and single-quotes anything else.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !isShellSafe(r)
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '/', r == '-':
		return true
	}
	return false
}
