package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "devdash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := NewRepository("")
	require.Error(t, err)
}

func TestVerificationPutGetOverwrite(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	address := "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	_, ok, err := repo.GetVerification(ctx, address)
	require.NoError(t, err)
	assert.False(t, ok)

	first := domain.Verification{
		Name:       "Counter",
		ABI:        json.RawMessage(`[]`),
		Source:     "contract Counter {}",
		Compiler:   "0.8.24",
		Optimized:  true,
		VerifiedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, repo.PutVerification(ctx, address, first))

	got, ok, err := repo.GetVerification(ctx, "0x5fbdb2315678afecb367f032d93f642f64180aa3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	second := first
	second.Name = "CounterV2"
	second.Optimized = false
	require.NoError(t, repo.PutVerification(ctx, address, second))

	got, ok, err = repo.GetVerification(ctx, address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CounterV2", got.Name)
	assert.False(t, got.Optimized)
}

func TestDeploymentsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, name := range []string{"A", "B", "C"} {
		require.NoError(t, repo.AddDeployment(ctx, domain.Deployment{
			Name:       name,
			Address:    "0xABC" + name,
			TxHash:     "0x0" + name,
			ABI:        json.RawMessage(`[]`),
			DeployedAt: time.Unix(int64(1700000000+i), 0).UTC(),
		}))
	}

	deployments, err := repo.ListDeployments(ctx, 2)
	require.NoError(t, err)
	require.Len(t, deployments, 2)
	assert.Equal(t, "C", deployments[0].Name)
	assert.Equal(t, "B", deployments[1].Name)
	assert.Equal(t, "0xabcc", deployments[0].Address)
	assert.JSONEq(t, `[]`, string(deployments[0].ABI))
}

func TestConnectionSettings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, ok, err := repo.LoadConnection(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SaveConnection(ctx, application.ConnectionSettings{
		Endpoint:  "http://127.0.0.1:8545",
		SealedKey: []byte{1, 2, 3},
	}))
	settings, ok, err := repo.LoadConnection(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8545", settings.Endpoint)
	assert.Equal(t, []byte{1, 2, 3}, settings.SealedKey)

	require.NoError(t, repo.SaveConnection(ctx, application.ConnectionSettings{Endpoint: "http://localhost:7545"}))
	settings, ok, err = repo.LoadConnection(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:7545", settings.Endpoint)
	assert.Empty(t, settings.SealedKey)
}

func TestPing(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Ping(context.Background()))
}
