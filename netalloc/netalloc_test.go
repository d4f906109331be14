package netalloc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustCIDR(t *testing.T, s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	require.NoError(t, err)
	return n
}

func TestNextAddressSequential(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.20"))

	a1, err := p.NextAddress("c1")
	require.NoError(t, err)
	require.Equal(t, "192.168.2.10", a1.String())

	a2, err := p.NextAddress("c2")
	require.NoError(t, err)
	require.Equal(t, "192.168.2.11", a2.String())
}

func TestNextAddressSkipsNetworkAndBroadcast(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.0"), net.ParseIP("192.168.2.1"))
	a1, err := p.NextAddress("c1")
	require.NoError(t, err)
	require.Equal(t, "192.168.2.1", a1.String(), "192.168.2.0 is the network address and must be skipped")

	_, err = p.NextAddress("c2")
	require.Error(t, err, "only the network address remains, and it is never eligible")
}

func TestNextAddressExhausted(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.11"))
	_, err := p.NextAddress("c1")
	require.NoError(t, err)
	_, err = p.NextAddress("c2")
	require.NoError(t, err)
	_, err = p.NextAddress("c3")
	require.Error(t, err)
}

func TestNextExplicitRejectsOutOfSubnet(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.20"))
	err := p.NextExplicit(net.ParseIP("10.0.0.5"), "c1")
	require.Error(t, err)
}

func TestNextExplicitRejectsDuplicate(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.20"))
	require.NoError(t, p.NextExplicit(net.ParseIP("192.168.2.15"), "c1"))
	require.Error(t, p.NextExplicit(net.ParseIP("192.168.2.15"), "c2"))
}

func TestReleaseByToken(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.20"))
	require.NoError(t, p.NextExplicit(net.ParseIP("192.168.2.10"), "c1"))
	require.NoError(t, p.NextExplicit(net.ParseIP("192.168.2.11"), "c1"))
	require.NoError(t, p.NextExplicit(net.ParseIP("192.168.2.12"), "c2"))

	n := p.Release("c1")
	require.Equal(t, 2, n)

	require.NoError(t, p.NextExplicit(net.ParseIP("192.168.2.10"), "c3"))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	p := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.20"))
	_, err := p.NextAddress("c1")
	require.NoError(t, err)
	snap := p.Snapshot()

	p2 := NewPool("lan", mustCIDR(t, "192.168.2.0/24"), net.ParseIP("192.168.2.10"), net.ParseIP("192.168.2.20"))
	require.NoError(t, p2.Restore(snap))

	next, err := p2.NextAddress("c2")
	require.NoError(t, err)
	require.Equal(t, "192.168.2.11", next.String())
}
