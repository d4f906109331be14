package volume

import (
	"testing"

	"github.com/banksean/xcd/freebsd"
	"github.com/stretchr/testify/require"
)

func TestForKindReturnsExpectedDriver(t *testing.T) {
	host := freebsd.NewHost()

	d, err := ForKind(host, DirectoryDriver)
	require.NoError(t, err)
	require.IsType(t, &DirectoryVolumeDriver{}, d)

	d, err = ForKind(host, ZfsDriver)
	require.NoError(t, err)
	require.IsType(t, &ZfsVolumeDriver{}, d)

	_, err = ForKind(host, DriverKind(99))
	require.Error(t, err)
}

func TestDriverKindString(t *testing.T) {
	require.Equal(t, "directory", DirectoryDriver.String())
	require.Equal(t, "zfs", ZfsDriver.String())
	require.Equal(t, "unknown", DriverKind(99).String())
}
