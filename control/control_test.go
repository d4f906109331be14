package control

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	data, err := EncodeRequest("list_containers", map[string]string{})
	require.NoError(t, err)

	req, err := DecodeRequest(data)
	require.NoError(t, err)
	require.Equal(t, "list_containers", req.Method)
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	data, err := EncodeResponse(0, map[string]int{"jid": 7})
	require.NoError(t, err)

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	require.Equal(t, 0, resp.Errno)
	require.JSONEq(t, `{"jid":7}`, string(resp.Value))
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	_, err := DecodeRequest([]byte("not json"))
	require.Error(t, err)
}
