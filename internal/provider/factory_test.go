package provider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

type stubProvider struct{ MemoryProvider }

func (stubProvider) HealthCheck(ctx context.Context) error { return nil }
func (stubProvider) Close() error                          { return nil }

func TestFactoryBuildsSQLite(t *testing.T) {
	f := NewFactory()

	p, err := f.New(Descriptor{
		Name:   "local",
		Kind:   "sqlite",
		Params: map[string]string{"path": filepath.Join(t.TempDir(), "mem.db")},
	})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Remember(context.Background(), &model.MemoryItem{
		OwnerID: "u", Scope: "personal", Content: "hello", SensitivityTier: model.TierPublic,
	})
	assert.NoError(t, err)
}

func TestFactoryUnknownKind(t *testing.T) {
	f := NewFactory()

	_, err := f.New(Descriptor{Kind: "s3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestFactoryRegisterAndReset(t *testing.T) {
	f := NewFactory()

	f.Register("stub", func(d Descriptor) (MemoryProvider, error) {
		return stubProvider{}, nil
	})
	p, err := f.New(Descriptor{Kind: "stub"})
	require.NoError(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))

	// Reset drops the override without a process restart.
	f.Reset()
	_, err = f.New(Descriptor{Kind: "stub"})
	assert.Error(t, err)
}

func TestFactorySQLiteMissingPath(t *testing.T) {
	f := NewFactory()

	_, err := f.New(Descriptor{Kind: "sqlite"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}
