package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/mantra/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/mantra/internal/domain"
)

const morningBundle = `
sessionId: morning
affirmationsUrl: affirmations.mp3
binaural:
  urlByPlatform: {ios: binaural.m4a, android: binaural.mp3}
  loop: true
  hz: 10
background:
  urlByPlatform: {ios: rain.m4a, android: rain.mp3}
  loop: true
mix: {affirmations: 1, binaural: 0.3, background: 0.5}
`

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.UseMockAudio = true
	cfg.Platform = domain.PlatformAndroid
	cfg.WatchBundles = false
	cfg.BundleDir = filepath.Join(root, "bundles")
	cfg.AssetDir = filepath.Join(root, "assets")
	cfg.CacheDir = filepath.Join(root, "cache")

	require.NoError(t, os.MkdirAll(cfg.BundleDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.AssetDir, 0o755))
	for _, name := range []string{"affirmations.mp3", "binaural.mp3", "rain.mp3", "preroll_atmosphere.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.AssetDir, name), []byte("audio"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BundleDir, "morning.yaml"), []byte(morningBundle), 0o644))
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *Application {
	t.Helper()
	app, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown() })
	return app
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "Mantra", config.AppName)
	assert.Equal(t, 44100, config.SampleRate)
	assert.Equal(t, "preroll_atmosphere", config.PrerollAsset)
	assert.Equal(t, 30*time.Second, config.DownloadTimeout)
	assert.True(t, config.WatchBundles)
	assert.False(t, config.UseMockAudio)
	assert.Empty(t, config.MetricsAddr)
	assert.NotEmpty(t, config.Platform)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MANTRA_PLATFORM", "IOS")
	t.Setenv("MANTRA_SAMPLE_RATE", "48000")
	t.Setenv("MANTRA_MOCK_AUDIO", "true")
	t.Setenv("MANTRA_BUNDLE_DIR", "/srv/bundles")
	t.Setenv("MANTRA_WATCH_BUNDLES", "0")
	t.Setenv("MANTRA_METRICS_ADDR", ":9102")
	t.Setenv("MANTRA_COMMAND_TIMEOUT", "5s")
	t.Setenv("MANTRA_DOWNLOAD_TIMEOUT", "12")

	cfg := LoadFromEnv(DefaultConfig())

	assert.Equal(t, domain.PlatformIOS, cfg.Platform)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.True(t, cfg.UseMockAudio)
	assert.Equal(t, "/srv/bundles", cfg.BundleDir)
	assert.False(t, cfg.WatchBundles)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 12*time.Second, cfg.DownloadTimeout)
}

func TestLoadFromEnv_IgnoresBadValues(t *testing.T) {
	t.Setenv("MANTRA_PLATFORM", "windows")
	t.Setenv("MANTRA_SAMPLE_RATE", "fast")
	t.Setenv("MANTRA_COMMAND_TIMEOUT", "soon")

	base := DefaultConfig()
	cfg := LoadFromEnv(base)

	assert.Equal(t, base.Platform, cfg.Platform)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Zero(t, cfg.CommandTimeout)
}

func TestApplication_LoadSession(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	ctx := context.Background()

	ids, err := app.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"morning"}, ids)

	require.NoError(t, app.LoadSession(ctx, "morning"))

	state := app.Engine().GetState()
	assert.Equal(t, domain.StatusReady, state.Status)
	assert.Equal(t, "morning", state.SessionID)
	assert.Equal(t, 0.3, state.Mix.Binaural)

	err = app.LoadSession(ctx, "evening")
	assert.ErrorIs(t, err, domain.ErrBundleNotFound)
	assert.Equal(t, map[string]any{"service": "app", "op": "read_bundle", "sessionId": "evening"}, domain.ErrorDetails(err))
}

func TestApplication_LoadSessionReportsEngineFailure(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.AssetDir, "rain.mp3")))
	app := newTestApp(t, cfg)

	err := app.LoadSession(context.Background(), "morning")
	require.Error(t, err)
	var serviceErr *domain.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "load_session", serviceErr.Op)
	assert.Equal(t, "morning", serviceErr.SessionID)
	assert.Equal(t, domain.StatusError, app.Engine().GetState().Status)
}

func TestApplication_BundleChangeResumesPlayback(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	ctx := context.Background()
	player := app.player.(*mock.Player)

	require.NoError(t, app.LoadSession(ctx, "morning"))
	require.NoError(t, app.Engine().Play(ctx))
	require.Equal(t, domain.StatusPlaying, app.Engine().GetState().Status)

	waves := filepath.Join(app.config.AssetDir, "waves.mp3")
	require.NoError(t, os.WriteFile(waves, []byte("audio"), 0o644))
	updated := strings.Replace(morningBundle, "android: rain.mp3", "android: waves.mp3", 1)
	require.NoError(t, os.WriteFile(filepath.Join(app.config.BundleDir, "morning.yaml"), []byte(updated), 0o644))

	app.handleBundleChange(ctx, "evening")
	assert.Len(t, player.Created(), 3, "other sessions are ignored")

	app.handleBundleChange(ctx, "morning")

	state := app.Engine().GetState()
	assert.Equal(t, domain.StatusPlaying, state.Status)
	assert.Equal(t, 0.3, state.Mix.Binaural, "an adjusted mix survives the reload")
	assert.Len(t, player.Created(), 6)
	assert.Contains(t, player.Created()[3:], waves)
	assert.Equal(t, 3, player.LiveTracks())
}

func TestApplication_RunQuits(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdin := io.NopCloser(strings.NewReader("state\nquit\n"))
	assert.NoError(t, app.Run(ctx, stdin, io.Discard))
}

func TestApplication_ShutdownTwice(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchBundles = true
	app, err := NewApplication(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.watcher)

	assert.NoError(t, app.Shutdown())
	assert.NoError(t, app.Shutdown())

	assert.ErrorIs(t, app.Engine().Play(context.Background()), domain.ErrEngineClosed)
}
