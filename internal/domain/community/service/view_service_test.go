package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"farm_community/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordView_DedupPerViewer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.views.RecordView(ctx, "p1", "u1", "s1")
	env.views.RecordView(ctx, "p1", "u1", "s2")
	env.views.RecordView(ctx, "p1", "", "anon-session")
	env.views.RecordView(ctx, "p1", "", "anon-session")
	env.views.RecordView(ctx, "p2", "u1", "s1")

	n, err := env.views.CountViews(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = env.views.CountViews(ctx, "p2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRecordView_SkipsWithoutIdentity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.views.RecordView(ctx, "p1", "", "")
	n, err := env.views.CountViews(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordView_SwallowsStoreFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.viewRepo.fail = true
	assert.NotPanics(t, func() { env.views.RecordView(ctx, "p1", "u1", "s1") })

	// 写入失败后去重键被释放，恢复后可再次计入
	env.viewRepo.fail = false
	env.views.RecordView(ctx, "p1", "u1", "s1")
	n, err := env.views.CountViews(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

type brokenDedup struct{}

func (brokenDedup) Get(ctx context.Context, key string, dest interface{}) error { return errors.New("down") }
func (brokenDedup) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	return errors.New("down")
}
func (brokenDedup) Delete(ctx context.Context, key string) error { return errors.New("down") }
func (brokenDedup) GetMultiple(ctx context.Context, keys []string) ([][]byte, error) {
	return nil, errors.New("down")
}
func (brokenDedup) SetMultiple(ctx context.Context, values map[string]interface{}, exp time.Duration) error {
	return errors.New("down")
}
func (brokenDedup) SetNX(ctx context.Context, key string, exp time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestRecordView_SwallowsDedupFailure(t *testing.T) {
	env := newTestEnv()
	svc := NewViewService(env.viewRepo, brokenDedup{}, time.Minute, metrics.NewMetricsCollector(prometheus.NewRegistry()))

	assert.NotPanics(t, func() { svc.RecordView(context.Background(), "p1", "u1", "s1") })
	n, err := svc.CountViews(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
