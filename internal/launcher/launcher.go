// Package launcher sequences user-triggered actions (play, exit,
// update) into calls on the integrity verifier, asset synchronizer and
// daemon supervisor, in the order the lifecycle requires.
package launcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/artifact"
	"github.com/etonedemid/better-launcher/internal/assets"
	"github.com/etonedemid/better-launcher/internal/browser"
	"github.com/etonedemid/better-launcher/internal/config"
	"github.com/etonedemid/better-launcher/internal/integrity"
	"github.com/etonedemid/better-launcher/internal/journal"
	"github.com/etonedemid/better-launcher/internal/manifest"
	"github.com/etonedemid/better-launcher/internal/paths"
	"github.com/etonedemid/better-launcher/internal/supervisor"
)

// Journal action and outcome labels.
const (
	actionPlay   = "play"
	actionExit   = "exit"
	actionUpdate = "update"

	outcomeOK    = "ok"
	outcomeError = "error"
)

type integrityChecker interface {
	EnsureCurrent(ctx context.Context, agentPath string) (integrity.Result, error)
}

type agentSupervisor interface {
	Start(agentPath string) error
	Stop()
	Status() (supervisor.Info, error)
}

type assetSyncer interface {
	PushToRuntime() error
	PullFromRuntime() error
}

type eventRecorder interface {
	Record(ctx context.Context, action, outcome, detail string) error
}

// Controller owns the launcher configuration and collaborators and
// serializes user actions. One Controller exists per invocation.
type Controller struct {
	mu sync.Mutex

	cfg        *config.Config
	env        config.Env
	home       string
	verifier   integrityChecker
	syncer     assetSyncer
	supervisor agentSupervisor
	journal    eventRecorder
	openURL    func(url string) error
	log        *zap.Logger
}

// New wires a Controller for the given launcher home. The journal is
// optional: if it cannot be opened the controller runs without one.
func New(home string, cfg *config.Config, env config.Env, log *zap.Logger) *Controller {
	if err := paths.EnsureVarDir(home); err != nil {
		log.Warn("could not create var directory", zap.Error(err))
	}

	syncer := assets.NewSyncer(cfg, paths.AssetStore(home), paths.RuntimeAssets(), log)
	fetcher := manifest.NewFetcher(env.HTTPTimeout, log)
	downloader := artifact.NewDownloader(env.HTTPTimeout, log)

	c := &Controller{
		cfg:        cfg,
		env:        env,
		home:       home,
		verifier:   integrity.NewVerifier(cfg, fetcher, downloader, env, log),
		syncer:     syncer,
		supervisor: supervisor.New(paths.PIDFile(home), paths.AgentLog(home), syncer, log),
		openURL:    browser.Open,
		log:        log,
	}

	if j, err := journal.Open(paths.JournalDB(home)); err != nil {
		log.Warn("launch journal unavailable", zap.Error(err))
	} else {
		c.journal = j
	}
	return c
}

// Play verifies the agent, starts it (the supervisor pushes assets
// before spawning) and opens the play page. An integrity failure
// aborts the launch; a browser failure does not.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	agentPath := paths.AgentPath(c.home)

	result, err := c.verifier.EnsureCurrent(ctx, agentPath)
	if err != nil {
		c.record(ctx, actionPlay, outcomeError, err.Error())
		return fmt.Errorf("integrity check: %w", err)
	}
	c.log.Info("integrity check complete", zap.Stringer("result", result))

	if err := c.supervisor.Start(agentPath); err != nil {
		c.record(ctx, actionPlay, outcomeError, err.Error())
		return err
	}

	if err := c.openURL(c.env.PlayURL); err != nil {
		// Best-effort; the agent is already up.
		c.log.Warn("could not open play page", zap.Error(err))
	}

	c.record(ctx, actionPlay, outcomeOK, result.String())
	return nil
}

// Exit stops the agent, pulls the runtime assets back into the store
// and persists the configuration. The pull runs after the stop so the
// captured tree is no longer being written to. Exit itself never
// fails; component failures are logged and reported via the journal.
func (c *Controller) Exit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.supervisor.Stop()

	outcome := outcomeOK
	detail := ""
	if err := c.syncer.PullFromRuntime(); err != nil {
		c.log.Error("asset pull failed", zap.Error(err))
		outcome, detail = outcomeError, err.Error()
	}
	if err := c.cfg.Save(paths.ConfigFile(c.home)); err != nil {
		c.log.Error("failed to persist configuration", zap.Error(err))
		if outcome == outcomeOK {
			outcome, detail = outcomeError, err.Error()
		}
	}

	c.record(ctx, actionExit, outcome, detail)
}

// Update runs the integrity check without starting the agent.
func (c *Controller) Update(ctx context.Context) (integrity.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.verifier.EnsureCurrent(ctx, paths.AgentPath(c.home))
	if err != nil {
		c.record(ctx, actionUpdate, outcomeError, err.Error())
		return result, err
	}
	c.record(ctx, actionUpdate, outcomeOK, result.String())
	return result, nil
}

// Status reports on the supervised agent.
func (c *Controller) Status() (supervisor.Info, error) {
	return c.supervisor.Status()
}

// PushAssets and PullAssets expose the synchronizer for the assets CLI
// command.
func (c *Controller) PushAssets() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncer.PushToRuntime()
}

func (c *Controller) PullAssets() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncer.PullFromRuntime()
}

// History returns the most recent journal events, newest first. With
// no journal available it returns an empty slice.
func (c *Controller) History(ctx context.Context, limit int) ([]journal.Event, error) {
	j, ok := c.journal.(*journal.Journal)
	if !ok || j == nil {
		return nil, nil
	}
	return j.Recent(ctx, limit)
}

// record writes a journal event, logging instead of failing when the
// journal is unavailable.
func (c *Controller) record(ctx context.Context, action, outcome, detail string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(ctx, action, outcome, detail); err != nil {
		c.log.Warn("failed to record journal event", zap.Error(err))
	}
}

// Close releases the controller's resources.
func (c *Controller) Close() {
	if j, ok := c.journal.(*journal.Journal); ok && j != nil {
		_ = j.Close()
	}
}
