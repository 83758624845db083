package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amrita-ai/amritacore/pkg/models"
)

type fakeMCPClient struct{ closed bool }

func (c *fakeMCPClient) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestNewGetDrop(t *testing.T) {
	r := New(nil, nil, nil)
	id := r.New(nil)
	require.NotEmpty(t, id)

	d, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, id, d.SessionID)

	require.NoError(t, r.Drop(context.Background(), id))
	_, err = r.Get(id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDropIsIdempotent(t *testing.T) {
	r := New(nil, nil, nil)
	id := r.New(nil)
	require.NoError(t, r.Drop(context.Background(), id))
	require.NoError(t, r.Drop(context.Background(), id))
}

func TestListReturnsLiveSessions(t *testing.T) {
	r := New(nil, nil, nil)
	a := r.New(nil)
	b := r.New(nil)
	require.ElementsMatch(t, []string{a, b}, r.List())

	require.NoError(t, r.Drop(context.Background(), a))
	require.ElementsMatch(t, []string{b}, r.List())
}

func TestIsolationSessionsDoNotShareMemory(t *testing.T) {
	r := New(nil, nil, nil)
	a := r.New(nil)
	b := r.New(nil)

	da, _ := r.Get(a)
	da.Lock()
	da.Memory.Append(models.NewTextMessage(models.RoleUser, "only in A"))
	da.Unlock()

	db, _ := r.Get(b)
	require.Empty(t, db.Memory.Messages)
}

func TestInitIsIdempotentAndMaterializesMCPClients(t *testing.T) {
	var calls int
	client := &fakeMCPClient{}
	factory := func(ctx context.Context, scripts []string) ([]MCPClient, error) {
		calls++
		return []MCPClient{client}, nil
	}

	r := New(nil, factory, nil)
	cfg := models.AmritaConfig{Function: models.FunctionConfig{
		AgentMCPClientEnable:  true,
		AgentMCPServerScripts: []string{"script.py"},
	}}
	id := r.New(&cfg)

	require.NoError(t, r.Init(context.Background(), id))
	require.NoError(t, r.Init(context.Background(), id))
	require.Equal(t, 1, calls, "Init must be idempotent")

	require.NoError(t, r.Drop(context.Background(), id))
	require.True(t, client.closed)
}

func TestEnsureWithIDCreatesOnFirstCallAndReturnsSameDataAfter(t *testing.T) {
	r := New(nil, nil, nil)
	cfg := models.AmritaConfig{}

	d1 := r.EnsureWithID("caller-supplied-id", &cfg)
	require.Equal(t, "caller-supplied-id", d1.SessionID)

	d1.Lock()
	d1.Memory.Append(models.NewTextMessage(models.RoleUser, "hello"))
	d1.Unlock()

	d2 := r.EnsureWithID("caller-supplied-id", &cfg)
	require.Same(t, d1, d2, "a second EnsureWithID for the same ID must return the existing session")
	require.Len(t, d2.Memory.Messages, 1)

	got, err := r.Get("caller-supplied-id")
	require.NoError(t, err)
	require.Same(t, d1, got)
}

func TestInitFailurePropagatesAndAllowsRetry(t *testing.T) {
	boom := errors.New("spawn failed")
	attempts := 0
	factory := func(ctx context.Context, scripts []string) ([]MCPClient, error) {
		attempts++
		if attempts == 1 {
			return nil, boom
		}
		return nil, nil
	}
	r := New(nil, factory, nil)
	cfg := models.AmritaConfig{Function: models.FunctionConfig{AgentMCPClientEnable: true}}
	id := r.New(&cfg)

	err := r.Init(context.Background(), id)
	require.ErrorIs(t, err, boom)

	require.NoError(t, r.Init(context.Background(), id))
	require.Equal(t, 2, attempts)
}
