package launcher

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etonedemid/better-launcher/internal/config"
	"github.com/etonedemid/better-launcher/internal/integrity"
	"github.com/etonedemid/better-launcher/internal/paths"
	"github.com/etonedemid/better-launcher/internal/supervisor"
)

// calls records the order of collaborator invocations.
type calls struct {
	order []string
}

type fakeVerifier struct {
	c      *calls
	result integrity.Result
	err    error
}

func (f *fakeVerifier) EnsureCurrent(_ context.Context, _ string) (integrity.Result, error) {
	f.c.order = append(f.c.order, "verify")
	return f.result, f.err
}

type fakeSupervisor struct {
	c        *calls
	startErr error
}

func (f *fakeSupervisor) Start(_ string) error {
	f.c.order = append(f.c.order, "start")
	return f.startErr
}

func (f *fakeSupervisor) Stop() {
	f.c.order = append(f.c.order, "stop")
}

func (f *fakeSupervisor) Status() (supervisor.Info, error) {
	return supervisor.Info{}, nil
}

type fakeSyncer struct {
	c       *calls
	pullErr error
}

func (f *fakeSyncer) PushToRuntime() error {
	f.c.order = append(f.c.order, "push")
	return nil
}

func (f *fakeSyncer) PullFromRuntime() error {
	f.c.order = append(f.c.order, "pull")
	return f.pullErr
}

type fakeJournal struct {
	events []string
}

func (f *fakeJournal) Record(_ context.Context, action, outcome, _ string) error {
	f.events = append(f.events, action+":"+outcome)
	return nil
}

func newTestController(t *testing.T, c *calls, v *fakeVerifier, s *fakeSupervisor, sync *fakeSyncer) (*Controller, *fakeJournal) {
	t.Helper()
	j := &fakeJournal{}
	ctrl := &Controller{
		cfg:        config.Defaults(),
		env:        config.Env{PlayURL: "https://better.game/#/play"},
		home:       t.TempDir(),
		verifier:   v,
		syncer:     sync,
		supervisor: s,
		journal:    j,
		log:        zap.NewNop(),
		openURL: func(url string) error {
			c.order = append(c.order, "browser")
			return nil
		},
	}
	return ctrl, j
}

func TestPlay_Sequence(t *testing.T) {
	c := &calls{}
	ctrl, j := newTestController(t, c,
		&fakeVerifier{c: c, result: integrity.ResultDownloaded},
		&fakeSupervisor{c: c},
		&fakeSyncer{c: c})

	require.NoError(t, ctrl.Play(context.Background()))
	assert.Equal(t, []string{"verify", "start", "browser"}, c.order)
	assert.Equal(t, []string{"play:ok"}, j.events)
}

func TestPlay_IntegrityFailureAbortsStart(t *testing.T) {
	c := &calls{}
	ctrl, j := newTestController(t, c,
		&fakeVerifier{c: c, err: errors.New("origin unreachable")},
		&fakeSupervisor{c: c},
		&fakeSyncer{c: c})

	err := ctrl.Play(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"verify"}, c.order, "a failed integrity check must not launch the agent")
	assert.Equal(t, []string{"play:error"}, j.events)
}

func TestPlay_StartFailureSkipsBrowser(t *testing.T) {
	c := &calls{}
	ctrl, _ := newTestController(t, c,
		&fakeVerifier{c: c},
		&fakeSupervisor{c: c, startErr: errors.New("spawn agent: exec format error")},
		&fakeSyncer{c: c})

	require.Error(t, ctrl.Play(context.Background()))
	assert.Equal(t, []string{"verify", "start"}, c.order)
}

func TestPlay_BrowserFailureIsNotFatal(t *testing.T) {
	c := &calls{}
	ctrl, _ := newTestController(t, c,
		&fakeVerifier{c: c},
		&fakeSupervisor{c: c},
		&fakeSyncer{c: c})
	ctrl.openURL = func(string) error { return errors.New("no display") }

	assert.NoError(t, ctrl.Play(context.Background()))
}

func TestExit_StopsBeforePulling(t *testing.T) {
	c := &calls{}
	ctrl, j := newTestController(t, c,
		&fakeVerifier{c: c},
		&fakeSupervisor{c: c},
		&fakeSyncer{c: c})

	ctrl.Exit(context.Background())

	assert.Equal(t, []string{"stop", "pull"}, c.order,
		"assets are pulled only after the agent has stopped")
	assert.Equal(t, []string{"exit:ok"}, j.events)

	// Configuration persisted.
	_, err := os.Stat(paths.ConfigFile(ctrl.home))
	assert.NoError(t, err)
}

func TestExit_PullFailureStillPersistsConfig(t *testing.T) {
	c := &calls{}
	ctrl, j := newTestController(t, c,
		&fakeVerifier{c: c},
		&fakeSupervisor{c: c},
		&fakeSyncer{c: c, pullErr: errors.New("disk full")})

	ctrl.Exit(context.Background())

	assert.Equal(t, []string{"stop", "pull"}, c.order)
	assert.Equal(t, []string{"exit:error"}, j.events)
	_, err := os.Stat(paths.ConfigFile(ctrl.home))
	assert.NoError(t, err, "a failed pull must not block settings persistence")
}

func TestUpdate(t *testing.T) {
	c := &calls{}
	ctrl, j := newTestController(t, c,
		&fakeVerifier{c: c, result: integrity.ResultUpToDate},
		&fakeSupervisor{c: c},
		&fakeSyncer{c: c})

	result, err := ctrl.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, integrity.ResultUpToDate, result)
	assert.Equal(t, []string{"verify"}, c.order, "update never starts the agent")
	assert.Equal(t, []string{"update:ok"}, j.events)
}
