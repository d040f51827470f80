package discovery

import (
	"path/filepath"
	"runtime"
	"strings"
)

// maxPathLen is a conservative bound covering PATH_MAX on the platforms we
// deploy to.
const maxPathLen = 4096

// PathValidator confirms a filesystem path is contained within a configured
// root. It never returns an error: every failure mode is false.
type PathValidator struct {
	root            string
	caseInsensitive bool
}

// PathValidatorOption configures optional validator behaviour.
type PathValidatorOption func(*PathValidator)

// WithCaseInsensitive forces case-insensitive containment comparison.
// The default follows the host filesystem convention.
func WithCaseInsensitive(on bool) PathValidatorOption {
	return func(v *PathValidator) {
		v.caseInsensitive = on
	}
}

// NewPathValidator creates a validator rooted at root. The root is resolved
// to an absolute path once at construction.
func NewPathValidator(root string, opts ...PathValidatorOption) (*PathValidator, error) {
	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, err
	}

	v := &PathValidator{
		root:            abs,
		caseInsensitive: runtime.GOOS == "darwin" || runtime.GOOS == "windows",
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Root returns the absolute root the validator contains paths within.
func (v *PathValidator) Root() string {
	return v.root
}

// IsValid reports whether path resolves to a location inside the root.
// Traversal segments that resolve back inside the root are accepted;
// anything escaping it, and any malformed input, is rejected. The check is
// done on the resolved relative path, so a sibling like root-extra never
// passes a naive prefix test.
func (v *PathValidator) IsValid(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	if len(path) > maxPathLen {
		return false
	}
	if strings.ContainsRune(path, '\x00') {
		return false
	}

	// Relative candidates are anchored at the root, absolute ones are
	// cleaned in place.
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(v.root, resolved)
	}

	root := v.root
	if v.caseInsensitive {
		root = strings.ToLower(root)
		resolved = strings.ToLower(resolved)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
