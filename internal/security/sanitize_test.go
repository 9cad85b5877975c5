package security

import (
	"testing"
)

func TestValidateRepoURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		// Valid cases
		{"valid github https", "https://github.com/user/repo", false},
		{"valid github https with .git", "https://github.com/user/repo.git", false},
		{"valid with dashes", "https://github.com/my-user/my-repo.git", false},
		{"valid with underscores", "https://github.com/my_user/my_repo.git", false},
		{"valid with numbers", "https://github.com/user123/repo456.git", false},
		{"valid with dots in repo", "https://github.com/user/repo.name.git", false},
		{"valid ssh form", "git@github.com:user/repo.git", false},
		{"valid ssh form without .git", "git@github.com:user/repo", false},

		// Command injection attempts
		{"command injection semicolon", "https://github.com/user/repo.git; rm -rf /", true},
		{"command injection pipe", "https://github.com/user/repo.git | cat /etc/passwd", true},
		{"command injection ampersand", "https://github.com/user/repo.git && curl evil.com", true},
		{"command injection backtick", "https://github.com/user/repo`whoami`.git", true},
		{"command injection dollar", "https://github.com/user/repo$(whoami).git", true},
		{"ssh form with injection", "git@github.com:user/repo.git; rm -rf /", true},

		// Path traversal attempts
		{"path traversal", "https://github.com/../../../etc/passwd", true},
		{"path traversal in repo", "https://github.com/user/../../../etc/passwd", true},

		// Invalid schemes
		{"http instead of https", "http://github.com/user/repo.git", true},
		{"git protocol", "git://github.com/user/repo.git", true},
		{"no protocol", "github.com/user/repo.git", true},

		// Invalid hosts
		{"gitlab instead of github", "https://gitlab.com/user/repo.git", true},
		{"bitbucket", "https://bitbucket.org/user/repo.git", true},
		{"malicious host", "https://evil.github.com.attacker.com/user/repo.git", true},
		{"ssh to other host", "git@evil.com:user/repo.git", true},

		// Invalid formats
		{"empty url", "", true},
		{"missing repo", "https://github.com/user", true},
		{"special chars in user", "https://github.com/user@evil/repo.git", true},
		{"special chars in repo", "https://github.com/user/repo|evil.git", true},
		{"spaces in url", "https://github.com/user /repo.git", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepoURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRepoURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		// Valid cases
		{"main branch", "main", false},
		{"master branch", "master", false},
		{"feature branch", "feature/new-feature", false},
		{"release branch", "release/v1.0.0", false},
		{"tag", "v2.3.1", false},
		{"commit sha", "4f2d9c1ab", false},
		{"with dashes", "my-feature-branch", false},
		{"with underscores", "my_feature_branch", false},
		{"with dots", "release.1.0", false},

		// Invalid cases
		{"empty ref", "", true},
		{"starts with dash", "-malicious", true},
		{"option injection", "--upload-pack=/bin/sh", true},
		{"command injection semicolon", "main; rm -rf /", true},
		{"command injection pipe", "main | cat /etc/passwd", true},
		{"command injection backtick", "main`whoami`", true},
		{"command injection dollar", "main$(whoami)", true},
		{"special chars", "feature@evil", true},
		{"spaces", "my branch", true},
		{"newline", "main\nmalicious", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRef() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateContainerName(t *testing.T) {
	tests := []struct {
		name      string
		container string
		wantErr   bool
	}{
		// Valid cases
		{"simple name", "opennotebook", false},
		{"with dash", "open-notebook", false},
		{"with underscore", "open_notebook", false},
		{"with numbers", "app2", false},
		{"with dot", "app.prod", false},

		// Invalid cases
		{"empty name", "", true},
		{"starts with dash", "-app", true},
		{"starts with dot", ".app", true},
		{"command injection", "app;rm", true},
		{"spaces", "my app", true},
		{"shell variable", "app$HOME", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContainerName(tt.container)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContainerName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseGitHubRepo(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"https with .git", "https://github.com/acme/infra.git", "acme", "infra", false},
		{"https without .git", "https://github.com/acme/infra", "acme", "infra", false},
		{"ssh form", "git@github.com:acme/infra.git", "acme", "infra", false},
		{"other host", "https://gitlab.com/acme/infra.git", "", "", true},
		{"missing repo", "https://github.com/acme", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseGitHubRepo(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseGitHubRepo() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("ParseGitHubRepo() = %q/%q, want %q/%q", owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"absolute path", "/var/lib/stagehand", "/var/lib/stagehand", false},
		{"path with dot elements", "/var/./lib/stagehand", "/var/lib/stagehand", false},
		{"relative path", "var/lib", "", true},
		{"traversal", "/var/../etc/passwd", "", true},
		{"hidden traversal", "/var/lib/../../etc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("SanitizePath() = %q, want %q", got, tt.want)
			}
		})
	}
}
