package site

import (
	"context"
	"testing"

	"github.com/banksean/xcd/effect"
	"github.com/banksean/xcd/image"
	"github.com/stretchr/testify/require"
)

type noopBackend struct{ effect.Backend }

func TestLifecycleTransitions(t *testing.T) {
	s := New("c1", "web", fakeBackend(t), image.JailConfig{})
	require.Equal(t, Empty, s.Stage())

	ctx := context.Background()
	require.NoError(t, s.StageRootFs(ctx, "zroot/containers/c1", "zroot/images/base", "layer", "/jails/c1"))
	require.Equal(t, RootFsOnly, s.Stage())

	require.NoError(t, s.RunContainer(42))
	require.Equal(t, Started, s.Stage())
	require.Equal(t, 42, s.Jid)

	require.Error(t, s.RunContainer(43)) // cannot re-enter Started

	s.Unwind(ctx)
	require.Equal(t, Terminated, s.Stage())
}

func TestCommitRequiresStarted(t *testing.T) {
	s := New("c1", "web", fakeBackend(t), image.JailConfig{})
	err := s.Commit(context.Background(), "zroot/containers/c1", "v1")
	require.Error(t, err)
}

type testBackend struct{}

func fakeBackend(t *testing.T) effect.Backend {
	t.Helper()
	return &stubBackend{}
}

type stubBackend struct{}

func (s *stubBackend) ZFSCreate(ctx context.Context, dataset string) error      { return nil }
func (s *stubBackend) ZFSCreateUndo(ctx context.Context, dataset string) error  { return nil }
func (s *stubBackend) ZFSClone(ctx context.Context, src, tag, dest string) error { return nil }
func (s *stubBackend) ZFSCloneUndo(ctx context.Context, dest string) error      { return nil }
func (s *stubBackend) ZFSSnap(ctx context.Context, dataset, tag string) error   { return nil }
func (s *stubBackend) ZFSSnapUndo(ctx context.Context, dataset, tag string) error { return nil }
func (s *stubBackend) MoveIf(ctx context.Context, iface string, jid int) error  { return nil }
func (s *stubBackend) MoveIfUndo(ctx context.Context, iface string) error       { return nil }
func (s *stubBackend) IfaceCreateAlias(ctx context.Context, iface, cidr string) error { return nil }
func (s *stubBackend) IfaceCreateAliasUndo(ctx context.Context, iface, cidr string) error {
	return nil
}
func (s *stubBackend) IfaceUp(ctx context.Context, iface string) error { return nil }
func (s *stubBackend) BridgeAddIface(ctx context.Context, bridge, iface string) error { return nil }
func (s *stubBackend) BridgeAddIfaceUndo(ctx context.Context, bridge, iface string) error {
	return nil
}
func (s *stubBackend) Mount(ctx context.Context, fsType string, opts []string, source, mountpoint string) error {
	return nil
}
func (s *stubBackend) MountUndo(ctx context.Context, mountpoint string) error { return nil }
func (s *stubBackend) CreateEpair(ctx context.Context) (string, string, error) {
	return "epair0a", "epair0b", nil
}
func (s *stubBackend) CreateEpairUndo(ctx context.Context, a string) error { return nil }
func (s *stubBackend) PFTableAddAddress(ctx context.Context, anchor, table, cidr string) error {
	return nil
}
func (s *stubBackend) PFTableAddAddressUndo(ctx context.Context, anchor, table, cidr string) error {
	return nil
}
func (s *stubBackend) PFCreateAnchor(ctx context.Context, anchor string) error     { return nil }
func (s *stubBackend) PFCreateAnchorUndo(ctx context.Context, anchor string) error { return nil }
func (s *stubBackend) JailDataset(ctx context.Context, jid int, dataset string) error {
	return nil
}
func (s *stubBackend) DupFd(ctx context.Context, rawFd int) (int, error) { return rawFd, nil }
func (s *stubBackend) DupFdUndo(ctx context.Context, dupedFd int) error  { return nil }
