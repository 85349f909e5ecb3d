package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "UPDATE_EXPERIMENTAL"
	configFileName = ".update-experimental"

	MergeTreeModeAuto      = "auto"
	MergeTreeModeLegacy    = "legacy"
	MergeTreeModeWriteTree = "write-tree"

	LogFormatConsole    = "console"
	LogFormatStructured = "structured"
)

type Config struct {
	GithubToken          string `mapstructure:"github_token"`
	GithubOwner          string `mapstructure:"github_owner"`
	GithubRepo           string `mapstructure:"github_repo"`
	ForkOwner            string `mapstructure:"fork_owner"`
	TriggerPR            string `mapstructure:"trigger_pr"`
	MainlineBranch       string `mapstructure:"mainline_branch"`
	ExperimentalBranch   string `mapstructure:"experimental_branch"`
	ForkRemote           string `mapstructure:"fork_remote"`
	OriginRemote         string `mapstructure:"origin_remote"`
	MergeTreeMode        string `mapstructure:"merge_tree_mode"`
	MergeabilityAttempts int    `mapstructure:"mergeability_attempts"`
	StateDir             string `mapstructure:"state_dir"`
	LogLevel             string `mapstructure:"log_level"`
	LogFormat            string `mapstructure:"log_format"`
	GitUserName          string `mapstructure:"git_user_name"`
	GitUserEmail         string `mapstructure:"git_user_email"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		GithubOwner:          "Microsoft",
		GithubRepo:           "TypeScript",
		MainlineBranch:       "master",
		ExperimentalBranch:   "experimental",
		ForkRemote:           "fork",
		OriginRemote:         "origin",
		MergeTreeMode:        MergeTreeModeAuto,
		MergeabilityAttempts: 5,
		StateDir:             ".experimental-state",
		LogLevel:             "info",
		LogFormat:            LogFormatConsole,
		GitUserName:          "TypeScript Bot",
		GitUserEmail:         "typescriptbot@microsoft.com",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// GitHub token is optional - only validate if provided
	if c.GithubToken != "" {
		if err := ValidateGitHubToken(c.GithubToken); err != nil {
			return fmt.Errorf("invalid github_token: %w", err)
		}
	}
	if err := ValidateGitHubOwnerRepo(c.GithubOwner, c.GithubRepo); err != nil {
		return fmt.Errorf("invalid github configuration: %w", err)
	}
	if c.ForkOwner != "" {
		if err := ValidateGitHubOwnerRepo(c.ForkOwner, c.GithubRepo); err != nil {
			return fmt.Errorf("invalid fork_owner: %w", err)
		}
	}
	branches := map[string]string{
		"mainline_branch":     c.MainlineBranch,
		"experimental_branch": c.ExperimentalBranch,
	}
	for key, value := range branches {
		if err := ValidateRefName(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if c.MainlineBranch == c.ExperimentalBranch {
		return fmt.Errorf("experimental_branch must differ from mainline_branch")
	}
	remotes := map[string]string{
		"fork_remote":   c.ForkRemote,
		"origin_remote": c.OriginRemote,
	}
	for key, value := range remotes {
		if err := ValidateRefName(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if c.ForkRemote == c.OriginRemote {
		return fmt.Errorf("fork_remote must differ from origin_remote")
	}
	switch c.MergeTreeMode {
	case MergeTreeModeAuto, MergeTreeModeLegacy, MergeTreeModeWriteTree:
	default:
		return fmt.Errorf("invalid merge_tree_mode %q: expected auto, legacy or write-tree", c.MergeTreeMode)
	}
	if c.MergeabilityAttempts < 1 {
		return fmt.Errorf("mergeability_attempts must be at least 1")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}
	if strings.Contains(c.StateDir, "..") {
		return fmt.Errorf("state_dir contains invalid path traversal")
	}
	switch c.LogFormat {
	case LogFormatConsole, LogFormatStructured:
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	return nil
}

// ValidateForGitHubOperations validates that the token and fork owner are present for pushes and comments
func (c *Config) ValidateForGitHubOperations() error {
	if c.GithubToken == "" {
		return fmt.Errorf("github_token is required for GitHub operations")
	}
	if c.ForkOwner == "" {
		return fmt.Errorf("fork_owner is required for GitHub operations")
	}
	return c.Validate()
}

// ForkURL is the clone URL of the fork the rebased branches are pushed to, empty without fork_owner.
func (c *Config) ForkURL() string {
	if c.ForkOwner == "" {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", c.ForkOwner, c.GithubRepo)
}

// ValidateGitHubToken validates GitHub token format (exported for reuse)
func ValidateGitHubToken(token string) error {
	token = strings.TrimSpace(token)
	if len(token) < 40 {
		return fmt.Errorf("token too short: expected at least 40 characters")
	}
	classicPAT := regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	prefixedPAT := regexp.MustCompile(`^ghp_[a-zA-Z0-9]{36}$`)
	fineGrainedPAT := regexp.MustCompile(`^github_pat_[a-zA-Z0-9_]{82}$`)
	appToken := regexp.MustCompile(`^ghs_[a-zA-Z0-9]{36}$`)
	oauthToken := regexp.MustCompile(`^gho_[a-zA-Z0-9]{36}$`)
	if !classicPAT.MatchString(token) &&
		!prefixedPAT.MatchString(token) &&
		!fineGrainedPAT.MatchString(token) &&
		!appToken.MatchString(token) &&
		!oauthToken.MatchString(token) {
		return fmt.Errorf("invalid token format")
	}
	return nil
}

// ValidateGitHubOwnerRepo validates GitHub owner and repository names (exported for reuse)
func ValidateGitHubOwnerRepo(owner, repo string) error {
	if owner == "" {
		return fmt.Errorf("owner cannot be empty")
	}
	if repo == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	validName := regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_.]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)
	if !validName.MatchString(owner) {
		return fmt.Errorf("invalid owner format: %s", owner)
	}
	if len(owner) > 39 {
		return fmt.Errorf("owner too long: maximum 39 characters")
	}
	if !validName.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %s", repo)
	}
	if len(repo) > 100 {
		return fmt.Errorf("repository too long: maximum 100 characters")
	}
	return nil
}

var validRefName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/\-]*$`)

// ValidateRefName validates branch and remote names
func ValidateRefName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !validRefName.MatchString(name) || strings.Contains(name, "..") || strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("invalid name: %s", name)
	}
	return nil
}

// LoadConfig reads .update-experimental.yaml, the environment and the defaults into a validated Config.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// BindEnv checks the variables in order
	bindings := map[string][]string{
		"github_token":          {"UPDATE_EXPERIMENTAL_GITHUB_TOKEN", "GITHUB_TOKEN"},
		"fork_owner":            {"UPDATE_EXPERIMENTAL_FORK_OWNER", "GH_USERNAME"},
		"trigger_pr":            {"UPDATE_EXPERIMENTAL_TRIGGER_PR", "SOURCE_ISSUE", "SYSTEM_PULLREQUEST_PULLREQUESTNUMBER"},
		"github_owner":          {"UPDATE_EXPERIMENTAL_GITHUB_OWNER"},
		"github_repo":           {"UPDATE_EXPERIMENTAL_GITHUB_REPO"},
		"mainline_branch":       {"UPDATE_EXPERIMENTAL_MAINLINE_BRANCH"},
		"experimental_branch":   {"UPDATE_EXPERIMENTAL_EXPERIMENTAL_BRANCH"},
		"fork_remote":           {"UPDATE_EXPERIMENTAL_FORK_REMOTE"},
		"origin_remote":         {"UPDATE_EXPERIMENTAL_ORIGIN_REMOTE"},
		"merge_tree_mode":       {"UPDATE_EXPERIMENTAL_MERGE_TREE_MODE"},
		"mergeability_attempts": {"UPDATE_EXPERIMENTAL_MERGEABILITY_ATTEMPTS"},
		"state_dir":             {"UPDATE_EXPERIMENTAL_STATE_DIR"},
		"log_level":             {"UPDATE_EXPERIMENTAL_LOG_LEVEL"},
		"log_format":            {"UPDATE_EXPERIMENTAL_LOG_FORMAT"},
		"git_user_name":         {"UPDATE_EXPERIMENTAL_GIT_USER_NAME"},
		"git_user_email":        {"UPDATE_EXPERIMENTAL_GIT_USER_EMAIL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s env: %w", key, err)
		}
	}
	defaults := DefaultConfig()
	v.SetDefault("mainline_branch", defaults.MainlineBranch)
	v.SetDefault("experimental_branch", defaults.ExperimentalBranch)
	v.SetDefault("fork_remote", defaults.ForkRemote)
	v.SetDefault("origin_remote", defaults.OriginRemote)
	v.SetDefault("merge_tree_mode", defaults.MergeTreeMode)
	v.SetDefault("mergeability_attempts", defaults.MergeabilityAttempts)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("git_user_name", defaults.GitUserName)
	v.SetDefault("git_user_email", defaults.GitUserEmail)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.TriggerPR = strings.TrimSpace(config.TriggerPR)
	if err := populateRepositoryDefaults(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// populateRepositoryDefaults fills owner and repo from the CI environment, then
// the origin remote of the working directory, then the built-in defaults.
func populateRepositoryDefaults(cfg *Config) error {
	if cfg.GithubOwner == "" {
		cfg.GithubOwner = strings.TrimSpace(os.Getenv("GITHUB_REPOSITORY_OWNER"))
	}
	if cfg.GithubRepo == "" {
		cfg.GithubRepo = strings.TrimSpace(os.Getenv("GITHUB_REPOSITORY_NAME"))
	}
	if slug := strings.TrimSpace(os.Getenv("GITHUB_REPOSITORY")); slug != "" {
		if idx := strings.Index(slug, "/"); idx > 0 && idx < len(slug)-1 {
			if cfg.GithubOwner == "" {
				cfg.GithubOwner = slug[:idx]
			}
			if cfg.GithubRepo == "" {
				cfg.GithubRepo = slug[idx+1:]
			}
		}
	}
	if cfg.GithubOwner == "" || cfg.GithubRepo == "" {
		owner, repo, err := originRemote()
		if err == nil {
			if cfg.GithubOwner == "" {
				cfg.GithubOwner = owner
			}
			if cfg.GithubRepo == "" {
				cfg.GithubRepo = repo
			}
		}
	}
	defaults := DefaultConfig()
	if cfg.GithubOwner == "" {
		cfg.GithubOwner = defaults.GithubOwner
	}
	if cfg.GithubRepo == "" {
		cfg.GithubRepo = defaults.GithubRepo
	}
	return nil
}

func originRemote() (string, string, error) {
	repo, err := git.PlainOpenWithOptions(".", &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", err
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", "", fmt.Errorf("origin remote has no url")
	}
	return parseGitRemoteURL(urls[0])
}

// parseGitRemoteURL extracts owner and repository from https, ssh and path style remotes.
func parseGitRemoteURL(raw string) (string, string, error) {
	url := strings.TrimSpace(raw)
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")
	if idx := strings.Index(url, "://"); idx >= 0 {
		url = url[idx+3:]
	} else if at := strings.Index(url, "@"); at >= 0 {
		if colon := strings.Index(url[at:], ":"); colon >= 0 {
			url = url[at+colon+1:]
		}
	}
	parts := strings.FieldsFunc(filepath.ToSlash(url), func(r rune) bool { return r == '/' || r == ':' })
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse remote url: %s", raw)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
