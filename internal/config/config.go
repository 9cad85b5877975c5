// Package config assembles the immutable configuration record for a
// bootstrap run. The record is constructed once at process start from
// defaults, an optional YAML file, STAGEHAND_* environment variables,
// and command-line flags, then passed into every stage. Stages never
// read the environment themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults for host paths and the primary-role container.
const (
	DefaultLogFile    = "/var/log/stagehand.log"
	DefaultDataDir    = "/var/lib/stagehand"
	DefaultSecretsDir = "/etc/stagehand/secrets"
	DefaultSSHDir     = "/etc/stagehand/ssh"
	DefaultCloneDir   = "/opt/stagehand/repo"

	DefaultContainerName = "opennotebook"
	DefaultImage         = "lfnovo/open_notebook:latest"

	DefaultPostDeployTimeout = 300
)

// DiskSpec describes one data disk to provision. A spec whose block
// device is absent on the host is skipped, never fatal.
type DiskSpec struct {
	Device     string `yaml:"device"`
	Partition  string `yaml:"partition"`
	MountPoint string `yaml:"mount_point"`
}

// Config holds all bootstrap configuration.
type Config struct {
	// Role selection: the playbook path whose basename decides the
	// deployment strategy.
	Playbook string `yaml:"playbook"`

	// Source control (web role)
	RepoURL     string `yaml:"repo_url"`
	RepoRef     string `yaml:"repo_ref"`
	CloneDir    string `yaml:"clone_dir"`
	GitKey      string `yaml:"git_key"`
	GitHubToken string `yaml:"github_token"`

	// Networking
	APIBase string `yaml:"api_base"`

	// Disk layout
	Disks []DiskSpec `yaml:"disks"`

	// Application parameters, consumed opaquely by the task runner
	AppRepoURL string `yaml:"app_repo_url"`
	AppRepoRef string `yaml:"app_repo_ref"`
	AppDir     string `yaml:"app_dir"`
	AppPort    string `yaml:"app_port"`
	AppService string `yaml:"app_service"`

	// Secrets, written to root-only files before the sequence starts
	APIToken string `yaml:"api_token"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`

	// Container (primary role)
	ContainerName string `yaml:"container_name"`
	Image         string `yaml:"image"`
	Replace       bool   `yaml:"replace"`

	// Host paths and ambient settings
	Locale     string `yaml:"locale"`
	AdminPort  int    `yaml:"admin_port"`
	LogFile    string `yaml:"log_file"`
	DataDir    string `yaml:"data_dir"`
	SecretsDir string `yaml:"secrets_dir"`
	SSHDir     string `yaml:"ssh_dir"`

	// Post-deploy commands (string or list form, like project hooks)
	PostDeploy        []interface{} `yaml:"post_deploy"`
	PostDeployTimeout int           `yaml:"post_deploy_timeout"`

	Verbose bool `yaml:"verbose"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		RepoRef:           "main",
		ContainerName:     DefaultContainerName,
		Image:             DefaultImage,
		Locale:            "en_US.UTF-8",
		AdminPort:         22,
		LogFile:           DefaultLogFile,
		DataDir:           DefaultDataDir,
		SecretsDir:        DefaultSecretsDir,
		SSHDir:            DefaultSSHDir,
		CloneDir:          DefaultCloneDir,
		PostDeployTimeout: DefaultPostDeployTimeout,
	}
}

// LoadFromFile loads config from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Config file is optional
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays STAGEHAND_* environment variables onto the config.
// Empty variables leave the current value untouched.
func (c *Config) LoadFromEnv() error {
	strVars := map[string]*string{
		"STAGEHAND_PLAYBOOK":       &c.Playbook,
		"STAGEHAND_REPO_URL":       &c.RepoURL,
		"STAGEHAND_REPO_REF":       &c.RepoRef,
		"STAGEHAND_CLONE_DIR":      &c.CloneDir,
		"STAGEHAND_GIT_KEY":        &c.GitKey,
		"STAGEHAND_API_BASE":       &c.APIBase,
		"STAGEHAND_APP_REPO_URL":   &c.AppRepoURL,
		"STAGEHAND_APP_REPO_REF":   &c.AppRepoRef,
		"STAGEHAND_APP_DIR":        &c.AppDir,
		"STAGEHAND_APP_PORT":       &c.AppPort,
		"STAGEHAND_APP_SERVICE":    &c.AppService,
		"STAGEHAND_API_TOKEN":      &c.APIToken,
		"STAGEHAND_TLS_CERT":       &c.TLSCert,
		"STAGEHAND_TLS_KEY":        &c.TLSKey,
		"STAGEHAND_CONTAINER_NAME": &c.ContainerName,
		"STAGEHAND_IMAGE":          &c.Image,
		"STAGEHAND_LOCALE":         &c.Locale,
		"STAGEHAND_LOG_FILE":       &c.LogFile,
		"STAGEHAND_DATA_DIR":       &c.DataDir,
	}
	for name, field := range strVars {
		if value := os.Getenv(name); value != "" {
			*field = value
		}
	}

	if value := os.Getenv("STAGEHAND_DISKS"); value != "" {
		disks, err := ParseDiskSpecs(value)
		if err != nil {
			return fmt.Errorf("STAGEHAND_DISKS: %w", err)
		}
		c.Disks = disks
	}

	if c.GitHubToken == "" {
		if token := os.Getenv("GH_TOKEN"); token != "" {
			c.GitHubToken = token
		} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			c.GitHubToken = token
		}
	}

	return nil
}

// SetFromFlags updates config from command line flags. Empty values are
// ignored so flags only override what was explicitly passed.
func (c *Config) SetFromFlags(flags map[string]string) {
	for key, value := range flags {
		if value == "" {
			continue
		}
		switch key {
		case "playbook":
			c.Playbook = value
		case "repo-url":
			c.RepoURL = value
		case "repo-ref":
			c.RepoRef = value
		case "clone-dir":
			c.CloneDir = value
		case "api-base":
			c.APIBase = value
		case "container-name":
			c.ContainerName = value
		case "image":
			c.Image = value
		case "log-file":
			c.LogFile = value
		case "data-dir":
			c.DataDir = value
		case "locale":
			c.Locale = value
		}
	}
}

// ParseDiskSpecs parses the compact environment form of the disk layout:
// comma-separated "device:partition:mountpoint" triples. The partition
// element may be empty; it is derived from the device later.
func ParseDiskSpecs(value string) ([]DiskSpec, error) {
	var specs []DiskSpec
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("disk spec %q must be device:partition:mountpoint", entry)
		}
		specs = append(specs, DiskSpec{
			Device:     strings.TrimSpace(parts[0]),
			Partition:  strings.TrimSpace(parts[1]),
			MountPoint: strings.TrimSpace(parts[2]),
		})
	}
	return specs, nil
}

// FillDerivedValues sets derived values based on other config.
func (c *Config) FillDerivedValues() {
	for i := range c.Disks {
		if c.Disks[i].Partition == "" && c.Disks[i].Device != "" {
			c.Disks[i].Partition = c.Disks[i].Device + "1"
		}
	}

	if c.AppRepoRef == "" && c.AppRepoURL != "" {
		c.AppRepoRef = "main"
	}
}

// Validate ensures the assembled config is usable. Role requirements are
// not checked here: a missing repo URL simply selects a different role.
func (c *Config) Validate() error {
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		return fmt.Errorf("admin_port must be 1-65535, got %d", c.AdminPort)
	}

	if strings.HasPrefix(c.RepoRef, "-") {
		return fmt.Errorf("repo_ref cannot start with '-', got %q", c.RepoRef)
	}

	if c.AppPort != "" {
		if _, err := strconv.Atoi(c.AppPort); err != nil {
			return fmt.Errorf("app_port must be numeric, got %q", c.AppPort)
		}
	}

	for i, disk := range c.Disks {
		if disk.Device == "" {
			return fmt.Errorf("disks[%d]: device is required", i)
		}
		if !strings.HasPrefix(disk.Device, "/dev/") {
			return fmt.Errorf("disks[%d]: device must be under /dev/, got %q", i, disk.Device)
		}
		if disk.MountPoint == "" {
			return fmt.Errorf("disks[%d]: mount_point is required", i)
		}
		if !filepath.IsAbs(disk.MountPoint) {
			return fmt.Errorf("disks[%d]: mount_point must be absolute, got %q", i, disk.MountPoint)
		}
	}

	for i, cmd := range c.PostDeploy {
		switch cmd.(type) {
		case string, []interface{}, []string:
			// Valid
		default:
			return fmt.Errorf("post_deploy[%d] must be a string or list, got %T", i, cmd)
		}
	}

	if c.PostDeployTimeout < 0 {
		return fmt.Errorf("post_deploy_timeout must be positive, got %d", c.PostDeployTimeout)
	}

	return nil
}

// HistoryDBPath returns the run-history database location under the
// data directory.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// SearchConfigPaths returns the default config file search paths.
func SearchConfigPaths() []string {
	return []string{
		"./stagehand.yaml",
		"./config/stagehand.yaml",
		"/etc/stagehand/config.yaml",
	}
}
