package httpapi

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/roach88/prdash/internal/cache"
	"github.com/roach88/prdash/internal/dashboard"
)

type serviceMock struct {
	mock.Mock
}

func newServiceMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *serviceMock {
	m := &serviceMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *serviceMock) Org() string {
	return "acme"
}

func (m *serviceMock) Load(ctx context.Context, force bool) (dashboard.Snapshot, error) {
	args := m.Called(ctx, force)
	return args.Get(0).(dashboard.Snapshot), args.Error(1)
}

func (m *serviceMock) RefreshIfStale(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *serviceMock) Age(ctx context.Context) time.Duration {
	return m.Called(ctx).Get(0).(time.Duration)
}

func (m *serviceMock) Stats(ctx context.Context) (cache.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(cache.Stats), args.Error(1)
}

func (m *serviceMock) ClearCache(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
