package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Project Project `yaml:"project"`
	Build   Build   `yaml:"build"`
	Bucket  Bucket  `yaml:"bucket"`
	CDN     CDN     `yaml:"cdn"`
	Daemon  Daemon  `yaml:"daemon"`
}

// Project identifies the documentation set being published and the
// trigger rules that apply to it.
type Project struct {
	// ID is used verbatim in the artifact name ("docs-" + ID).
	ID            string `yaml:"id"`
	RepoURL       string `yaml:"repo_url"`
	DefaultBranch string `yaml:"default_branch,omitempty"`
	// DocsDir is the repository path whose changes trigger a build.
	DocsDir string `yaml:"docs_dir,omitempty"`
	// TagPrefix is stripped from tag names to derive the release version.
	TagPrefix string `yaml:"tag_prefix"`
	// DefaultVersion labels builds of the default branch.
	DefaultVersion string `yaml:"default_version,omitempty"`
}

// Build configures the documentation generator invocation.
type Build struct {
	// Tool is the documentation generator binary (e.g. sphinx-build).
	Tool string `yaml:"tool,omitempty"`
	// ToolArgs are extra arguments passed before source/output dirs.
	ToolArgs []string `yaml:"tool_args,omitempty"`
	// SourceDir is the documentation source tree inside the checkout.
	SourceDir string `yaml:"source_dir,omitempty"`
	// Requirements is a dependency manifest installed before rendering.
	// Empty disables the install step.
	Requirements string `yaml:"requirements,omitempty"`
	// InstallCommand overrides the dependency install invocation.
	InstallCommand []string `yaml:"install_command,omitempty"`
	// LandingPage is a markdown file rendered to index.html at the
	// output root. Empty generates a minimal landing page.
	LandingPage string `yaml:"landing_page,omitempty"`
	WorkDir     string `yaml:"work_dir,omitempty"`
	// ArtifactDir stores packaged build artifacts between the build
	// and publish stages.
	ArtifactDir string        `yaml:"artifact_dir,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Bucket configures the object-storage destination.
type Bucket struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region,omitempty"`
	Name      string `yaml:"name"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	// DestPrefix is the fixed prefix under which all documentation
	// versions live. Never deleted, only written into.
	DestPrefix string `yaml:"dest_prefix"`
}

// CDN configures cache invalidation after a publish.
type CDN struct {
	// Endpoint is the invalidation API base URL. Empty disables the
	// invalidation stage.
	Endpoint       string        `yaml:"endpoint,omitempty"`
	DistributionID string        `yaml:"distribution_id,omitempty"`
	Token          string        `yaml:"token,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
}

// Daemon configures the webhook-driven long-running mode.
type Daemon struct {
	ListenAddr    string `yaml:"listen_addr,omitempty"`
	Workers       int    `yaml:"workers,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
	// ScheduleInterval enables a periodic republish of the default
	// branch; zero disables it.
	ScheduleInterval time.Duration `yaml:"schedule_interval,omitempty"`
	RunStorePath     string        `yaml:"run_store_path,omitempty"`
	// NATSURL enables run-completed notifications when set.
	NATSURL     string `yaml:"nats_url,omitempty"`
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env if present; existing process env wins.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment variables from .env")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content so credentials
	// never need to live in the file itself.
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Project.DefaultBranch == "" {
		c.Project.DefaultBranch = "main"
	}
	if c.Project.DocsDir == "" {
		c.Project.DocsDir = "docs"
	}
	if c.Project.DefaultVersion == "" {
		c.Project.DefaultVersion = "main"
	}
	if c.Build.Tool == "" {
		c.Build.Tool = "sphinx-build"
	}
	if c.Build.SourceDir == "" {
		c.Build.SourceDir = c.Project.DocsDir
	}
	if c.Build.WorkDir == "" {
		c.Build.WorkDir = "./work"
	}
	if c.Build.ArtifactDir == "" {
		c.Build.ArtifactDir = "./artifacts"
	}
	if c.Build.Timeout <= 0 {
		c.Build.Timeout = 20 * time.Minute
	}
	if c.Bucket.Region == "" {
		c.Bucket.Region = "us-east-1"
	}
	if c.CDN.Timeout <= 0 {
		c.CDN.Timeout = 30 * time.Second
	}
	if c.Daemon.ListenAddr == "" {
		c.Daemon.ListenAddr = ":8080"
	}
	if c.Daemon.Workers <= 0 {
		c.Daemon.Workers = 2
	}
	if c.Daemon.RunStorePath == "" {
		c.Daemon.RunStorePath = "./docship-runs.db"
	}
	if c.Daemon.NATSSubject == "" {
		c.Daemon.NATSSubject = "docship.runs"
	}
}

// ArtifactName returns the canonical artifact name for this project.
func (c *Config) ArtifactName() string {
	return "docs-" + c.Project.ID
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Project: Project{
			ID:             "concrete-core",
			RepoURL:        "https://github.com/example/concrete-core.git",
			DefaultBranch:  "main",
			DocsDir:        "docs",
			TagPrefix:      "concrete-core-",
			DefaultVersion: "main",
		},
		Build: Build{
			Tool:         "sphinx-build",
			ToolArgs:     []string{"-b", "html"},
			SourceDir:    "docs",
			Requirements: "docs/requirements.txt",
			LandingPage:  "docs/landing.md",
		},
		Bucket: Bucket{
			Endpoint:   "s3.amazonaws.com",
			Region:     "us-east-1",
			Name:       "example-docs",
			AccessKey:  "${DOCSHIP_ACCESS_KEY}",
			SecretKey:  "${DOCSHIP_SECRET_KEY}",
			UseSSL:     true,
			DestPrefix: "concrete-core",
		},
		CDN: CDN{
			Endpoint:       "https://cdn.example.com/api",
			DistributionID: "${DOCSHIP_CDN_DISTRIBUTION}",
			Token:          "${DOCSHIP_CDN_TOKEN}",
		},
		Daemon: Daemon{
			ListenAddr: ":8080",
			Workers:    2,
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
