package effect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeBackend records calls so tests can assert unwind ordering without
// touching any real host resource.
type fakeBackend struct {
	calls    []string
	failNext string
}

func (f *fakeBackend) call(name string) error {
	f.calls = append(f.calls, name)
	if f.failNext == name {
		f.failNext = ""
		return errors.New("boom: " + name)
	}
	return nil
}

func (f *fakeBackend) ZFSCreate(ctx context.Context, dataset string) error { return f.call("ZFSCreate:" + dataset) }
func (f *fakeBackend) ZFSCreateUndo(ctx context.Context, dataset string) error {
	return f.call("ZFSCreateUndo:" + dataset)
}
func (f *fakeBackend) ZFSClone(ctx context.Context, src, tag, dest string) error {
	return f.call("ZFSClone:" + dest)
}
func (f *fakeBackend) ZFSCloneUndo(ctx context.Context, dest string) error {
	return f.call("ZFSCloneUndo:" + dest)
}
func (f *fakeBackend) ZFSSnap(ctx context.Context, dataset, tag string) error {
	return f.call("ZFSSnap:" + dataset + "@" + tag)
}
func (f *fakeBackend) ZFSSnapUndo(ctx context.Context, dataset, tag string) error {
	return f.call("ZFSSnapUndo:" + dataset + "@" + tag)
}
func (f *fakeBackend) MoveIf(ctx context.Context, iface string, jid int) error {
	return f.call("MoveIf:" + iface)
}
func (f *fakeBackend) MoveIfUndo(ctx context.Context, iface string) error {
	return f.call("MoveIfUndo:" + iface)
}
func (f *fakeBackend) IfaceCreateAlias(ctx context.Context, iface, cidr string) error {
	return f.call("IfaceCreateAlias:" + iface)
}
func (f *fakeBackend) IfaceCreateAliasUndo(ctx context.Context, iface, cidr string) error {
	return f.call("IfaceCreateAliasUndo:" + iface)
}
func (f *fakeBackend) IfaceUp(ctx context.Context, iface string) error { return f.call("IfaceUp:" + iface) }
func (f *fakeBackend) BridgeAddIface(ctx context.Context, bridge, iface string) error {
	return f.call("BridgeAddIface:" + iface)
}
func (f *fakeBackend) BridgeAddIfaceUndo(ctx context.Context, bridge, iface string) error {
	return f.call("BridgeAddIfaceUndo:" + iface)
}
func (f *fakeBackend) Mount(ctx context.Context, fsType string, opts []string, source, mountpoint string) error {
	return f.call("Mount:" + mountpoint)
}
func (f *fakeBackend) MountUndo(ctx context.Context, mountpoint string) error {
	return f.call("MountUndo:" + mountpoint)
}
func (f *fakeBackend) CreateEpair(ctx context.Context) (string, string, error) {
	if err := f.call("CreateEpair"); err != nil {
		return "", "", err
	}
	return "epair0a", "epair0b", nil
}
func (f *fakeBackend) CreateEpairUndo(ctx context.Context, a string) error {
	return f.call("CreateEpairUndo:" + a)
}
func (f *fakeBackend) PFTableAddAddress(ctx context.Context, anchor, table, cidr string) error {
	return f.call("PFTableAddAddress:" + cidr)
}
func (f *fakeBackend) PFTableAddAddressUndo(ctx context.Context, anchor, table, cidr string) error {
	return f.call("PFTableAddAddressUndo:" + cidr)
}
func (f *fakeBackend) PFCreateAnchor(ctx context.Context, anchor string) error {
	return f.call("PFCreateAnchor:" + anchor)
}
func (f *fakeBackend) PFCreateAnchorUndo(ctx context.Context, anchor string) error {
	return f.call("PFCreateAnchorUndo:" + anchor)
}
func (f *fakeBackend) JailDataset(ctx context.Context, jid int, dataset string) error {
	return f.call("JailDataset:" + dataset)
}
func (f *fakeBackend) DupFd(ctx context.Context, rawFd int) (int, error) {
	if err := f.call("DupFd"); err != nil {
		return 0, err
	}
	return rawFd + 1000, nil
}
func (f *fakeBackend) DupFdUndo(ctx context.Context, dupedFd int) error { return f.call("DupFdUndo") }

func TestUnwindOrderIsLIFO(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	j := New(backend)

	require.NoError(t, j.ZFSCreate(ctx, "zroot/c1"))
	require.NoError(t, j.IfaceCreateAlias(ctx, "vnet0", "10.0.0.2/24"))
	a, b, err := j.CreateEpair(ctx)
	require.NoError(t, err)
	require.Equal(t, "epair0a", a)
	require.Equal(t, "epair0b", b)
	require.NoError(t, j.Mount(ctx, "nullfs", []string{"ro"}, "/src", "/mnt"))

	backend.calls = nil // only care about unwind now
	j.Unwind(ctx)

	require.Equal(t, []string{
		"MountUndo:/mnt",
		"CreateEpairUndo:epair0a",
		"IfaceCreateAliasUndo:vnet0",
		"ZFSCreateUndo:zroot/c1",
	}, backend.calls)
}

func TestFailedStepDoesNotRecordAndIsNotUnwound(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{failNext: "Mount:/mnt"}
	j := New(backend)

	require.NoError(t, j.ZFSCreate(ctx, "zroot/c1"))
	err := j.Mount(ctx, "nullfs", nil, "/src", "/mnt")
	require.Error(t, err)
	require.Equal(t, 1, j.Len()) // the failed mount was never recorded

	backend.calls = nil
	j.Unwind(ctx)
	require.Equal(t, []string{"ZFSCreateUndo:zroot/c1"}, backend.calls)
}

func TestUnwindContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	j := New(backend)
	require.NoError(t, j.ZFSCreate(ctx, "zroot/c1"))
	require.NoError(t, j.IfaceCreateAlias(ctx, "vnet0", "10.0.0.2/24"))

	backend.calls = nil
	backend.failNext = "IfaceCreateAliasUndo:vnet0"
	j.Unwind(ctx) // must not panic or stop early
	require.Equal(t, []string{"IfaceCreateAliasUndo:vnet0", "ZFSCreateUndo:zroot/c1"}, backend.calls)
}

func TestIfaceUpUnwindIsNoop(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	j := New(backend)
	require.NoError(t, j.IfaceUp(ctx, "vnet0"))
	backend.calls = nil
	j.Unwind(ctx)
	require.Empty(t, backend.calls)
}
