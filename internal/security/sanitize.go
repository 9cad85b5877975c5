package security

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	httpsURLPattern  = regexp.MustCompile(`^https://github\.com/[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+(?:\.git)?$`)
	sshURLPattern    = regexp.MustCompile(`^git@github\.com:[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+(?:\.git)?$`)
	refPattern       = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	containerPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// ValidateRepoURL ensures a URL is safe for git clone operations.
// HTTPS and SSH forms of GitHub URLs are allowed; anything else is
// rejected to prevent option or command injection.
func ValidateRepoURL(rawURL string) error {
	if sshURLPattern.MatchString(rawURL) {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" || u.Host != "github.com" {
		return fmt.Errorf("only GitHub HTTPS or SSH URLs allowed, got %q", rawURL)
	}
	if !httpsURLPattern.MatchString(rawURL) {
		return fmt.Errorf("URL contains invalid characters or format")
	}

	return nil
}

// ValidateRef ensures a git ref (branch, tag, or commit) is safe for
// git operations. Prevents option injection through ref names.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("ref cannot start with '-'")
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("ref contains invalid characters")
	}
	return nil
}

// ValidateContainerName ensures a container name is acceptable to the
// engine and safe to interpolate into commands.
func ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if !containerPattern.MatchString(name) {
		return fmt.Errorf("container name contains invalid characters (must start alphanumeric, then a-z, A-Z, 0-9, _, ., -)")
	}
	return nil
}

// ParseGitHubRepo extracts the owner and repository name from a GitHub
// URL in either HTTPS or SSH form.
func ParseGitHubRepo(rawURL string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(rawURL, "git@github.com:"):
		path = strings.TrimPrefix(rawURL, "git@github.com:")
	case strings.HasPrefix(rawURL, "https://github.com/"):
		path = strings.TrimPrefix(rawURL, "https://github.com/")
	default:
		return "", "", fmt.Errorf("not a GitHub URL: %s", rawURL)
	}

	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot extract owner/repo from %s", rawURL)
	}
	return parts[0], parts[1], nil
}

// SanitizePath ensures a path is absolute and doesn't contain traversal attempts.
func SanitizePath(path string) (string, error) {
	// Must be absolute
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path contains traversal elements: %s", path)
	}

	return filepath.Clean(path), nil
}
