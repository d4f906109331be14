// Package registry is the thin OCI registry client xcd delegates image
// pulls and pushes to. It wraps go-containerregistry's remote package
// rather than shelling out to a "docker"/"container" CLI the way the
// teacher repo's image.go does, since an actual registry protocol client
// is available in the example pack and this engine talks to upstream OCI
// registries directly, not a local daemon.
package registry

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/banksean/xcd/imgref"
)

// Client fetches and pushes images against a configured set of registries.
type Client struct {
	Keychain authn.Keychain
}

func New() *Client {
	return &Client{Keychain: authn.DefaultKeychain}
}

func (c *Client) toGGCRRef(ref imgref.Reference) (name.Reference, error) {
	formatted := imgref.Format(ref)
	r, err := name.ParseReference(formatted)
	if err != nil {
		return nil, fmt.Errorf("registry: parse reference %q: %w", formatted, err)
	}
	return r, nil
}

// FetchManifest resolves ref against its registry and returns the image's
// manifest and config.
func (c *Client) FetchManifest(ref imgref.Reference) (v1.Image, error) {
	ggcrRef, err := c.toGGCRRef(ref)
	if err != nil {
		return nil, err
	}
	img, err := remote.Image(ggcrRef, remote.WithAuthFromKeychain(c.Keychain))
	if err != nil {
		return nil, fmt.Errorf("registry: fetch manifest for %s: %w", formatRef(ref), err)
	}
	return img, nil
}

// Push uploads img under ref.
func (c *Client) Push(ref imgref.Reference, img v1.Image) error {
	ggcrRef, err := c.toGGCRRef(ref)
	if err != nil {
		return err
	}
	if err := remote.Write(ggcrRef, img, remote.WithAuthFromKeychain(c.Keychain)); err != nil {
		return fmt.Errorf("registry: push %s: %w", formatRef(ref), err)
	}
	return nil
}

func formatRef(ref imgref.Reference) string {
	return imgref.Format(ref)
}
