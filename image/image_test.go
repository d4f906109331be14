package image

import (
	"testing"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/stretchr/testify/require"
)

func TestCalculateChainIDDeterministic(t *testing.T) {
	diffIDs := []string{
		"sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	id1, err := CalculateChainID(diffIDs)
	require.NoError(t, err)
	id2, err := CalculateChainID(diffIDs)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	single, err := CalculateChainID(diffIDs[:1])
	require.NoError(t, err)
	require.Equal(t, ChainID(diffIDs[0]), single)
}

func TestCalculateChainIDOrderSensitive(t *testing.T) {
	a := []string{"sha256:" + repeat("a", 64), "sha256:" + repeat("b", 64)}
	b := []string{"sha256:" + repeat("b", 64), "sha256:" + repeat("a", 64)}
	idA, err := CalculateChainID(a)
	require.NoError(t, err)
	idB, err := CalculateChainID(b)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)
}

func TestCalculateChainIDEmptyErrors(t *testing.T) {
	_, err := CalculateChainID(nil)
	require.Error(t, err)
}

func TestInferLayerContentType(t *testing.T) {
	require.Equal(t, LayerTarGzip, InferLayerContentType("layer.tar.gz"))
	require.Equal(t, LayerTarGzip, InferLayerContentType("layer.tgz"))
	require.Equal(t, LayerTarZstd, InferLayerContentType("layer.tar.zst"))
	require.Equal(t, LayerTarZstd, InferLayerContentType("layer.zst"))
	require.Equal(t, LayerTarZstd, InferLayerContentType("layer.zstd"))
	require.Equal(t, LayerTarZstd, InferLayerContentType("layer.tzst"))
	require.Equal(t, LayerTarGzip, InferLayerContentType("layer.gz"))
	require.Equal(t, LayerTar, InferLayerContentType("layer.tar"))
	require.Equal(t, LayerUnknown, InferLayerContentType("layer.bin"))
}

func TestManifestDigestStable(t *testing.T) {
	m := v1.Manifest{SchemaVersion: 2, MediaType: "application/vnd.oci.image.manifest.v1+json"}
	d1, err := ManifestDigest(m)
	require.NoError(t, err)
	d2, err := ManifestDigest(m)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
