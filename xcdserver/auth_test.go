package xcdserver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banksean/xcd/control"
)

func TestRequireRoot(t *testing.T) {
	require.NoError(t, requireRoot(control.Credential{UID: 0}))
	require.Error(t, requireRoot(control.Credential{UID: 1000}))
}

func TestRequireOwner(t *testing.T) {
	require.NoError(t, requireOwner(control.Credential{UID: 0}, 1000))
	require.NoError(t, requireOwner(control.Credential{UID: 1000}, 1000))
	require.Error(t, requireOwner(control.Credential{UID: 1001}, 1000))
}
