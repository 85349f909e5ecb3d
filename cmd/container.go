package cmd

import (
	"fmt"
	"os"

	"github.com/raffihsieh/update-experimental/internal/config"
	"github.com/raffihsieh/update-experimental/internal/logging"
	"github.com/raffihsieh/update-experimental/internal/orchestrator"
	"github.com/raffihsieh/update-experimental/internal/repository"
	"github.com/raffihsieh/update-experimental/internal/service"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// container holds all the dependencies for the application.

type container struct {
	cfg    *config.Config
	logger *zap.Logger

	fsRepo    repository.FileSystemRepository
	gitRepo   repository.GitRepository
	ghRepo    repository.GithubRepository
	stateRepo repository.StateRepository
	runLock   repository.RunLock
	gitCLI    service.GitCLIService
}

// newContainer creates a new container with all the dependencies.
// requireGitHub is false for dry runs, which never push or comment.
func newContainer(requireGitHub bool) (*container, error) {
	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if requireGitHub {
		if err := cfg.ValidateForGitHubOperations(); err != nil {
			return nil, err
		}
	}
	logger, err := logging.NewLoggerFactory().CreateLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	fsRepo := repository.NewOSFileSystem()
	gitRepo, err := repository.NewGitRepository(workDir, cfg.GithubToken, logger)
	if err != nil {
		return nil, err
	}
	// GitHub repository is optional for dry runs - only create if token is provided
	var ghRepo repository.GithubRepository
	if cfg.GithubToken != "" {
		ghRepo, err = repository.NewGithubRepository(cfg.GithubToken, cfg.GithubOwner, cfg.GithubRepo, logger)
		if err != nil {
			return nil, err
		}
	} else {
		ghRepo = repository.NewGithubNoopRepository(cfg.GithubOwner, cfg.GithubRepo)
	}
	gitCLI, err := service.NewGitCLIService(
		service.NewOSCommandRunner(),
		logger,
		workDir,
		cfg.MergeTreeMode,
		service.WithPreservedPaths(cfg.StateDir),
	)
	if err != nil {
		return nil, err
	}
	return &container{
		cfg:       cfg,
		logger:    logger,
		fsRepo:    fsRepo,
		gitRepo:   gitRepo,
		ghRepo:    ghRepo,
		stateRepo: repository.NewJSONStateRepository(fsRepo, cfg.StateDir, logger),
		runLock:   repository.NewRunLock(cfg.StateDir, logger),
		gitCLI:    gitCLI,
	}, nil
}

// orchestrator wires the update orchestrator from the container.
func (c *container) orchestrator() *orchestrator.UpdateExperimentalOrchestrator {
	return orchestrator.NewUpdateExperimentalOrchestrator(orchestrator.Dependencies{
		GitRepo:    c.gitRepo,
		GitCLI:     c.gitCLI,
		GithubRepo: c.ghRepo,
		StateRepo:  c.stateRepo,
		RunLock:    c.runLock,
		Logger:     c.logger,
	}, orchestrator.Settings{
		MainlineBranch:       c.cfg.MainlineBranch,
		ExperimentalBranch:   c.cfg.ExperimentalBranch,
		OriginRemote:         c.cfg.OriginRemote,
		ForkRemote:           c.cfg.ForkRemote,
		ForkURL:              c.cfg.ForkURL(),
		GitUserName:          c.cfg.GitUserName,
		GitUserEmail:         c.cfg.GitUserEmail,
		MergeabilityAttempts: c.cfg.MergeabilityAttempts,
	})
}

func (c *container) close() {
	_ = c.logger.Sync()
}
