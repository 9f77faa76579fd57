package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	name       string
	cleanupErr error
	cleaned    bool
}

func (s *stubAgent) Name() string                    { return s.name }
func (s *stubAgent) Init(ctx context.Context) error  { return nil }
func (s *stubAgent) Execute(ctx context.Context, req Request) (Result, error) {
	return Result{Agent: s.name, Symbol: req.Symbol}, nil
}
func (s *stubAgent) Cleanup(ctx context.Context) error {
	s.cleaned = true
	return s.cleanupErr
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubAgent{name: "technical"}))
	require.NoError(t, r.Register(&stubAgent{name: "sentiment"}))

	a, ok := r.Get("technical")
	require.True(t, ok)
	require.Equal(t, "technical", a.Name())

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubAgent{name: "technical"}))
	err := r.Register(&stubAgent{name: "technical"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already registered")
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubAgent{name: "zeta"}))
	require.NoError(t, r.Register(&stubAgent{name: "alpha"}))

	require.Equal(t, []string{"alpha", "zeta"}, r.List())
}

func TestRegistryCleanupAll(t *testing.T) {
	r := NewRegistry()

	ok := &stubAgent{name: "ok"}
	bad := &stubAgent{name: "bad", cleanupErr: errors.New("boom")}
	require.NoError(t, r.Register(ok))
	require.NoError(t, r.Register(bad))

	err := r.CleanupAll(context.Background())
	require.Error(t, err)
	require.True(t, ok.cleaned)
	require.True(t, bad.cleaned)
}
