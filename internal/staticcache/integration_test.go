package staticcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/config"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Global: config.GlobalConfig{
			CacheDirectory: t.TempDir(),
			FallbackClass:  "memory",
		},
		Bins: []config.BinConfig{{
			Name:             "cache_menu",
			GetAllowed:       true,
			AddAllowed:       true,
			UpdateAllowed:    true,
			DeleteAllowed:    true,
			Whitelist:        []string{"cache_menu-links:main", "cache_menu-links:footer"},
			UpdateIgnoreKeys: []string{"created"},
		}},
	}
}

func TestFileBackedRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	d, err := NewFromConfig(cfg, "cache_menu", WithMetrics(metrics))
	require.NoError(t, err)

	stored, err := d.Set(ctx, "links:main", map[string]int{"items": 3}, cache.Permanent)
	require.NoError(t, err)
	require.True(t, stored)

	path := filepath.Join(cfg.Global.CacheDirectory, "cache_menu", "links:main.json")
	_, err = os.Stat(path)
	require.NoError(t, err, "whitelisted writes land on disk")

	obj, ok, err := d.Get(ctx, "links:main")
	require.NoError(t, err)
	require.True(t, ok)
	var decoded map[string]int
	require.NoError(t, obj.Decode(&decoded))
	assert.Equal(t, 3, decoded["items"])

	stored, err = d.Set(ctx, "other", "v", cache.Temporary)
	require.NoError(t, err)
	require.True(t, stored)
	_, ok, err = d.Get(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)

	empty, err := d.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	require.NoError(t, d.Clear(ctx, "", false))
	_, ok, err = d.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok, "temporary fallback entries expire on a general clear")
	_, ok, err = d.Get(ctx, "links:main")
	require.NoError(t, err)
	assert.True(t, ok, "permanent static entries survive a general clear")

	require.NoError(t, d.Clear(ctx, "links:main", false))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	empty, err = d.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Operations.WithLabelValues("cache_menu", opSet, routeStatic)) +
		testutil.ToFloat64(metrics.Operations.WithLabelValues("cache_menu", opSet, routeFallback)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Errors.WithLabelValues("cache_menu", opGet)))
}

func TestFileBackedExpiredReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	d, err := NewFromConfig(fileConfig(t), "cache_menu", WithClock(clock))
	require.NoError(t, err)

	stored, err := d.Set(ctx, "links:footer", "v", cache.ExpireAt(now.Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, stored)

	_, ok, err := d.Get(ctx, "links:footer")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = d.Get(ctx, "links:footer")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileBackedWildcardClear(t *testing.T) {
	ctx := context.Background()
	d, err := NewFromConfig(fileConfig(t), "cache_menu")
	require.NoError(t, err)

	for _, cid := range []string{"links:main", "links:footer"} {
		stored, err := d.Set(ctx, cid, cid, cache.Permanent)
		require.NoError(t, err)
		require.True(t, stored)
	}

	require.NoError(t, d.Clear(ctx, "links:m", true))
	_, ok, _ := d.Get(ctx, "links:main")
	assert.False(t, ok)
	_, ok, _ = d.Get(ctx, "links:footer")
	assert.True(t, ok)

	require.NoError(t, d.Clear(ctx, "*", true))
	empty, err := d.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestNewFromConfigUnknownBin(t *testing.T) {
	_, err := NewFromConfig(fileConfig(t), "missing")
	require.Error(t, err)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Bins[0].FallbackClass = "MEMORY"
	settings := NewSettings(cfg, cfg.Bins[0])

	assert.True(t, settings.IsCidWhitelisted("cache_menu-links:main"))
	assert.False(t, settings.IsCidWhitelisted("links:main"))
	assert.Equal(t, []string{"cache_menu-links:main", "cache_menu-links:footer"}, settings.WhitelistCids())
	assert.Equal(t, "memory", settings.FallbackCacheClass())
	assert.Equal(t, cfg.Global.CacheDirectory, settings.CacheDirectory())

	first, err := settings.FallbackCache()
	require.NoError(t, err)
	second, err := settings.FallbackCache()
	require.NoError(t, err)
	assert.Same(t, first, second, "fallback is constructed once")

	settings.IgnoreKeys[0] = "mutated"
	assert.Equal(t, []string{"created"}, cfg.Bins[0].UpdateIgnoreKeys)
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.observe("TBIN", opGet, routeDenied)
	m.observeError("TBIN", opSet)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Operations.WithLabelValues("TBIN", opGet, routeDenied)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Errors.WithLabelValues("TBIN", opSet)))

	var nilMetrics *Metrics
	nilMetrics.observe("TBIN", opGet, routeStatic)
	nilMetrics.observeError("TBIN", opGet)
}
