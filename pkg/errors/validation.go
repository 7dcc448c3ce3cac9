package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// conanNameRegex matches the character set Conan accepts for package names,
// versions, users and channels.
var conanNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_+\-.]*$`)

// ValidateConanField validates one slash- or at-separated field of a Conan
// reference (name, version, user or channel).
func ValidateConanField(field, value string) error {
	if value == "" {
		return New(ErrCodeInvalidReference, "%s cannot be empty", field)
	}
	if !conanNameRegex.MatchString(value) {
		return New(ErrCodeInvalidReference, "invalid %s: %q", field, value)
	}
	return nil
}

// ValidateManifestFilename validates a manifest filename for safety.
// It ensures the filename is a simple basename without path components.
func ValidateManifestFilename(filename string) error {
	if filename == "" {
		return New(ErrCodeInvalidManifest, "manifest filename cannot be empty")
	}

	if strings.ContainsAny(filename, "/\\") {
		return New(ErrCodeInvalidManifest, "manifest filename cannot contain path separators")
	}

	if strings.HasPrefix(filename, ".") {
		return New(ErrCodeInvalidManifest, "manifest filename cannot be a hidden file")
	}

	return nil
}

// ValidatePath validates a file path within a project for safety.
// It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	return nil
}

// ValidateWithinRoot resolves rel against root and ensures the result stays
// inside root. It returns the cleaned absolute path.
func ValidateWithinRoot(root, rel string) (string, error) {
	base, err := filepath.Abs(root)
	if err != nil {
		return "", Wrap(ErrCodeInvalidPath, err, "resolve root %s", root)
	}
	if rel == "" || rel == "." {
		return base, nil
	}
	if err := ValidatePath(rel); err != nil {
		return "", err
	}
	full := filepath.Join(base, filepath.FromSlash(rel))
	r, err := filepath.Rel(base, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", New(ErrCodeInvalidPath, "path %q escapes the scan root", rel)
	}
	return full, nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL uses one of the allowed schemes.
func ValidateURL(rawURL string, schemes ...string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	for _, s := range schemes {
		if strings.HasPrefix(rawURL, s+"://") {
			return nil
		}
	}
	return New(ErrCodeInvalidInput, "URL must use one of the schemes %s", strings.Join(schemes, ", "))
}
