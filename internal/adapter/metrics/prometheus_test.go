package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/mantra/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/logger"
)

func newTestCollector(t *testing.T) (*Collector, *eventbus.SyncEventBus) {
	t.Helper()
	bus := eventbus.NewSyncEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	return NewCollector(logger.NewTestLogger(), bus), bus
}

func TestCollector_Status(t *testing.T) {
	c, bus := newTestCollector(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues("idle")))

	bus.Publish(domain.NewStateChangedEvent(domain.Snapshot{Status: domain.StatusPlaying, PositionMs: 90500}, domain.StatusReady))

	assert.Equal(t, 0.0, testutil.ToFloat64(c.status.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues("playing")))
	assert.Equal(t, 90.5, testutil.ToFloat64(c.position))
}

func TestCollector_Commands(t *testing.T) {
	c, bus := newTestCollector(t)

	bus.Publish(domain.NewCommandCompletedEvent("1", "play", 20*time.Millisecond, nil))
	bus.Publish(domain.NewCommandCompletedEvent("2", "play", time.Millisecond, errors.New("boom")))
	bus.Publish(domain.NewCommandCompletedEvent("3", "load", time.Second, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("play", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("play", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("load", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.commandDuration))
}

func TestCollector_TrackEvents(t *testing.T) {
	c, bus := newTestCollector(t)

	bus.Publish(domain.NewTrackDegradedEvent("s1", domain.RoleBackground, errors.New("device lost")))
	bus.Publish(domain.NewTrackFinishedEvent("s1", domain.RoleBinaural))
	bus.Publish(domain.NewPrerollFailedEvent(domain.ErrPrerollUnavailable))
	bus.Publish(domain.NewBundleLoadedEvent("s1", domain.AssetBinaural, domain.DefaultMix))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.degraded.WithLabelValues("background")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("binaural")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.prerollFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bundlesLoaded))

	c.Close()
	bus.Publish(domain.NewPrerollFailedEvent(domain.ErrPrerollUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.prerollFailures), "no updates after Close")
}

func TestCollector_Handler(t *testing.T) {
	c, bus := newTestCollector(t)
	bus.Publish(domain.NewCommandCompletedEvent("1", "seek", time.Millisecond, nil))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `mantra_commands_total{command="seek",result="ok"} 1`), body)
	assert.Contains(t, body, `mantra_session_status{status="idle"} 1`)
}
