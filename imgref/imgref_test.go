package imgref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	const s = "127.0.0.1/helloworld:1234567"
	ref, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ref.Hostname)
	require.Equal(t, "helloworld", ref.Name)
	require.Equal(t, Tag("1234567"), ref.Tag)
	require.Nil(t, ref.Digest)
	require.Equal(t, s, Format(ref))
}

func TestParseNoHost(t *testing.T) {
	ref, err := Parse("node:18-alpine")
	require.NoError(t, err)
	require.Empty(t, ref.Hostname)
	require.Equal(t, "node", ref.Name)
	require.Equal(t, Tag("18-alpine"), ref.Tag)
}

func TestParseDigestRef(t *testing.T) {
	digest := "sha256:" + stringsRepeat("a", 64)
	ref, err := Parse("registry.example.com:5000/foo/bar@" + digest)
	require.NoError(t, err)
	require.Equal(t, "registry.example.com:5000", ref.Hostname)
	require.Equal(t, "foo/bar", ref.Name)
	require.NotNil(t, ref.Digest)
	require.Equal(t, digest, ref.Digest.String())
	require.Equal(t, "registry.example.com:5000/foo/bar@"+digest, Format(ref))
}

func TestParseMissingTagOrDigest(t *testing.T) {
	_, err := Parse("justaname")
	require.Error(t, err)
}

func TestParseDigestValidation(t *testing.T) {
	_, err := ParseDigest("sha256:tooshort")
	require.Error(t, err)

	_, err = ParseDigest("md5:" + stringsRepeat("a", 32))
	require.Error(t, err)
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
