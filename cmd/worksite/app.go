package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"worksite/internal/cache"
	cachecore "worksite/internal/cache/core"
	"worksite/internal/config"
	"worksite/internal/core"
	"worksite/internal/directory"
	"worksite/internal/importer"
	"worksite/internal/logging"
	"worksite/pkg/domain"
)

// app holds what every subcommand shares for one invocation.
type app struct {
	envFiles  []string
	actor     string
	role      string
	assumeYes bool
	link      bool

	cfg     *config.Config
	log     *zap.Logger
	backend cachecore.Backend
	svc     *core.Service
	ctx     context.Context
}

func newApp() *app { return &app{} }

// open loads configuration and starts the service.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFiles)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := cache.OpenBackend(ctx, cfg.CacheBackend())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	svc, err := core.NewService(core.Options{
		Cache: cache.NewLayer(backend, logger),
		Directory: directory.Options{
			Picker:        configuredPicker(cfg),
			Prompter:      &terminalPrompter{in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), assumeYes: a.assumeYes},
			Opener:        cfg.Opener(),
			PromptTimeout: cfg.Directory.PromptTimeout,
			Watch:         cfg.Directory.Watch,
		},
		Import:         cfg.Importer(),
		Fetcher:        &importer.Fetcher{Client: &http.Client{Timeout: cfg.Import.HTTPTimeout}, S3: cfg.S3Defaults()},
		ImportDebounce: cfg.Import.Debounce,
		Logger:         logger,
	})
	if err != nil {
		_ = backend.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = backend.Close()
		return err
	}
	if cfg.Import.URL != "" && svc.ImportURL() == "" {
		if err := svc.SetImportURL(ctx, cfg.Import.URL); err != nil {
			logger.Warn("apply configured import url", zap.Error(err))
		}
	}
	a.cfg, a.log, a.backend, a.svc = cfg, logger, backend, svc

	if a.actor != "" {
		user, err := svc.Login(ctx, a.actor, domain.UserRole(a.role))
		if err != nil {
			return err
		}
		ctx = domain.WithActor(ctx, domain.Actor{ID: user.ID, Name: user.Name})
	}
	a.ctx = ctx

	// A restored handle is only usable after permission is granted again.
	if a.link && svc.SyncState().HasHandle {
		if err := svc.RequestPermission(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Directory not linked (%v); changes are kept in the local cache.\n", err)
		}
	}
	return nil
}

func (a *app) close() error {
	if a.svc == nil {
		return nil
	}
	err := a.svc.Close()
	if cerr := a.backend.Close(); err == nil {
		err = cerr
	}
	_ = a.log.Sync()
	return err
}

func configuredPicker(cfg *config.Config) directory.Picker {
	return directory.PickerFunc(func(context.Context) (directory.Handle, error) {
		if cfg.Directory.Locator == "" {
			return directory.Handle{}, fmt.Errorf("no directory given: pass a locator or set %sDIRECTORY", config.Prefix)
		}
		return directory.ParseLocator(cfg.Directory.Locator)
	})
}

// terminalPrompter asks on the terminal before granting read-write access.
type terminalPrompter struct {
	in        io.Reader
	out       io.Writer
	assumeYes bool
}

var errPromptClosed = errors.New("no answer on input")

func (p *terminalPrompter) Prompt(_ context.Context, h directory.Handle) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	fmt.Fprintf(p.out, "Allow worksite to read and write %s? [y/N] ", h)
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && line == "" {
		return false, errPromptClosed
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
