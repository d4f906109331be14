// Package image models the OCI-derived image format this engine runs:
// manifests, content-addressed layers chained by diff-id, and the
// JailConfig a manifest resolves to when instantiated. Grounded on
// oci_util::layer::ChainId and oci_util::digest::OciDigest from the
// original implementation, expressed here over go-containerregistry's
// v1.Hash/v1.Manifest types rather than reinventing OCI's wire format.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/banksean/xcd/imgref"
	"github.com/banksean/xcd/interp"
)

// ChainID is the recursive digest identifying a stack of layers applied in
// order, per oci_util::layer::ChainId: chain_id(d0) = d0, chain_id(d0..dn)
// = sha256("<chain_id(d0..d(n-1))> <dn>").
type ChainID string

func sha256Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// CalculateChainID folds a sequence of layer diff-ids (content digests of
// the uncompressed layer tars, in the order they apply) into a single
// ChainID. diffIDs must be non-empty.
func CalculateChainID(diffIDs []string) (ChainID, error) {
	if len(diffIDs) == 0 {
		return "", fmt.Errorf("image: cannot compute chain id of zero layers")
	}
	chainID := diffIDs[0]
	for _, diffID := range diffIDs[1:] {
		chainID = sha256Digest(chainID + " " + diffID)
	}
	return ChainID(chainID), nil
}

// Exec describes a single command xc runs at a container lifecycle point:
// init, main, or deinit. It resolves to a Jexec invocation against the
// running jail once a Site enters Started.
type Exec struct {
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env,omitempty"`
	WorkDir    string            `json:"workdir,omitempty"`
	User       string            `json:"user,omitempty"`
	Required   bool              `json:"required,omitempty"`
	Jailed     bool              `json:"jailed"`
	StdoutFile string            `json:"stdout_file,omitempty"`
	StderrFile string            `json:"stderr_file,omitempty"`
}

// Jexec is the fully resolved form of an Exec, ready to pass to jexec(8)
// or to a direct execve after a jail_attach. Unlike Exec it carries no
// unresolved $VAR references: interp.Apply has already run over Args/Env.
type Jexec struct {
	Jid     int
	Args    []string
	Env     []string
	WorkDir string
}

// ResolveJexec expands e's interpolated fields against env and binds it to
// jid, the numeric jail id of the target container.
func ResolveJexec(e Exec, jid int, env map[string]string) (Jexec, error) {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		v, err := interp.Apply(a, env)
		if err != nil {
			return Jexec{}, fmt.Errorf("image: resolve arg %d: %w", i, err)
		}
		args[i] = v
	}
	envList := make([]string, 0, len(e.Env))
	for k, v := range e.Env {
		rv, err := interp.Apply(v, env)
		if err != nil {
			return Jexec{}, fmt.Errorf("image: resolve env %s: %w", k, err)
		}
		envList = append(envList, k+"="+rv)
	}
	return Jexec{Jid: jid, Args: args, Env: envList, WorkDir: e.WorkDir}, nil
}

// Volume is a declared mount point a JailConfig requires at instantiate
// time, surfaced from a Jailfile VOLUME directive.
type Volume struct {
	MountPoint string            `json:"mountpoint"`
	Hints      map[string]string `json:"hints,omitempty"`
	Required   bool              `json:"required,omitempty"`
	ReadOnly   bool              `json:"read_only,omitempty"`
}

// JailConfig is the fully materialized configuration an image resolves to:
// everything xcd needs to stage and start a container from it, grounded
// on the composite of xc::models::jail config plus the ConfigMod targets
// applied by a Jailfile build (ENV, ALLOW, VOLUME, SYSVIPC, MOUNT).
type JailConfig struct {
	Image      imgref.Reference  `json:"image"`
	ChainID    ChainID           `json:"chain_id"`
	Init       []Exec            `json:"init,omitempty"`
	Main       []Exec            `json:"main,omitempty"`
	Deinit     []Exec            `json:"deinit,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Allow      []string          `json:"allow,omitempty"`
	Volumes    []Volume          `json:"volumes,omitempty"`
	SysVIPC    map[string]bool   `json:"sysvipc,omitempty"`
	Mounts     [][]string        `json:"mounts,omitempty"`
	NoInit     bool              `json:"no_init,omitempty"`
	NoDeinit   bool              `json:"no_deinit,omitempty"`
	WorkDir    string            `json:"workdir,omitempty"`
}

// LayerContentType is inferred from a layer blob's file suffix when
// ingesting a legacy OCI tarball that does not carry an explicit
// mediaType, mirroring ocitar's suffix sniffing.
type LayerContentType int

const (
	LayerUnknown LayerContentType = iota
	LayerTarGzip
	LayerTarZstd
	LayerTar
)

// InferLayerContentType classifies by bare filename suffix, matching
// oci-push's classify_by_suffix: a .zst/.zstd/.tzst layer is zstd-
// compressed and a .gz/.tgz layer is gzip-compressed regardless of
// whether a .tar segment precedes the suffix.
func InferLayerContentType(filename string) LayerContentType {
	switch {
	case strings.HasSuffix(filename, ".zst"), strings.HasSuffix(filename, ".zstd"), strings.HasSuffix(filename, ".tzst"):
		return LayerTarZstd
	case strings.HasSuffix(filename, ".gz"), strings.HasSuffix(filename, ".tgz"):
		return LayerTarGzip
	case strings.HasSuffix(filename, ".tar"):
		return LayerTar
	default:
		return LayerUnknown
	}
}

// Canonicalize returns the canonical JSON encoding of v1.Manifest used as
// input to the manifest's own content digest: fields sorted, no
// insignificant whitespace. go-containerregistry's v1.Manifest already
// marshals deterministically via encoding/json's sorted map keys and fixed
// struct field order, so Canonicalize is a thin, explicitly-named wrapper
// rather than a bespoke canonicalizer.
func Canonicalize(m v1.Manifest) ([]byte, error) {
	return json.Marshal(m)
}

// ManifestDigest computes the content digest identifying a manifest: the
// same sha256-over-canonical-JSON rule OCI uses for every content-
// addressed object in the store.
func ManifestDigest(m v1.Manifest) (string, error) {
	b, err := Canonicalize(m)
	if err != nil {
		return "", err
	}
	return sha256Digest(string(b)), nil
}

// FromLegacyOCIConfig builds a JailConfig from a bare OCI image config
// (v1.ConfigFile) for images that were never built with a Jailfile -
// ingested from an upstream OCI registry image, for instance. Entrypoint
// and Cmd compose into a single Main Exec the same way "docker run" would
// resolve them, and Env is parsed from the OCI "KEY=VALUE" string list.
func FromLegacyOCIConfig(ref imgref.Reference, chainID ChainID, cfg v1.Config) JailConfig {
	args := append(append([]string{}, cfg.Entrypoint...), cfg.Cmd...)
	env := map[string]string{}
	for _, kv := range cfg.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return JailConfig{
		Image:   ref,
		ChainID: chainID,
		Main: []Exec{{
			Args:    args,
			Env:     env,
			WorkDir: cfg.WorkingDir,
			User:    cfg.User,
			Jailed:  true,
		}},
		Env:     env,
		WorkDir: cfg.WorkingDir,
	}
}
