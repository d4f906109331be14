// Package volume implements the two volume drivers xc supports, grounded
// on xcd::volume::VolumeDriverKind and xc-bin's volume create command: a
// plain host directory bind, and a ZFS dataset mounted in for the
// lifetime of the container.
package volume

import (
	"context"
	"fmt"

	"github.com/banksean/xcd/freebsd"
)

type DriverKind int

const (
	DirectoryDriver DriverKind = iota
	ZfsDriver
)

func (k DriverKind) String() string {
	switch k {
	case DirectoryDriver:
		return "directory"
	case ZfsDriver:
		return "zfs"
	default:
		return "unknown"
	}
}

// Volume is a named, persistent mount source a container can bind in,
// independent of any single container's lifetime.
type Volume struct {
	Name     string
	Kind     DriverKind
	Device   string            // directory driver: host path; zfs driver: dataset name
	ZFSProps map[string]string // zfs driver: properties applied at create time
	ReadOnly bool
}

// Driver stages and mounts a Volume into a container's jail root.
type Driver interface {
	Create(ctx context.Context, v Volume) error
	Mount(ctx context.Context, v Volume, mountpoint string) error
	Unmount(ctx context.Context, v Volume, mountpoint string) error
}

// DirectoryVolumeDriver mounts an existing host directory into the
// container via nullfs, optionally read-only.
type DirectoryVolumeDriver struct {
	Host *freebsd.Host
}

func (d *DirectoryVolumeDriver) Create(ctx context.Context, v Volume) error {
	return nil // the directory is expected to already exist on the host
}

func (d *DirectoryVolumeDriver) Mount(ctx context.Context, v Volume, mountpoint string) error {
	opts := []string{"ro"}
	if !v.ReadOnly {
		opts = []string{"rw"}
	}
	return d.Host.Mount(ctx, "nullfs", opts, v.Device, mountpoint)
}

func (d *DirectoryVolumeDriver) Unmount(ctx context.Context, v Volume, mountpoint string) error {
	return d.Host.MountUndo(ctx, mountpoint)
}

// ZfsVolumeDriver provisions a ZFS dataset per volume and mounts its
// dataset mountpoint directly into the container via nullfs, so the
// dataset's own snapshot/clone history stays independent of any
// container's image layers.
type ZfsVolumeDriver struct {
	Host *freebsd.Host
}

func (d *ZfsVolumeDriver) Create(ctx context.Context, v Volume) error {
	if err := d.Host.ZFSCreate(ctx, v.Device); err != nil {
		return fmt.Errorf("volume: create dataset %s: %w", v.Device, err)
	}
	for k, val := range v.ZFSProps {
		if _, err := d.Host.Set(ctx, v.Device, k, val); err != nil {
			return fmt.Errorf("volume: set %s=%s on %s: %w", k, val, v.Device, err)
		}
	}
	return nil
}

func (d *ZfsVolumeDriver) Mount(ctx context.Context, v Volume, mountpoint string) error {
	source, err := d.Host.MountPoint(ctx, v.Device)
	if err != nil {
		return fmt.Errorf("volume: resolve mountpoint of %s: %w", v.Device, err)
	}
	opts := []string{"ro"}
	if !v.ReadOnly {
		opts = []string{"rw"}
	}
	return d.Host.Mount(ctx, "nullfs", opts, source, mountpoint)
}

func (d *ZfsVolumeDriver) Unmount(ctx context.Context, v Volume, mountpoint string) error {
	return d.Host.MountUndo(ctx, mountpoint)
}

// ForKind returns the Driver implementation for a DriverKind.
func ForKind(host *freebsd.Host, kind DriverKind) (Driver, error) {
	switch kind {
	case DirectoryDriver:
		return &DirectoryVolumeDriver{Host: host}, nil
	case ZfsDriver:
		return &ZfsVolumeDriver{Host: host}, nil
	default:
		return nil, fmt.Errorf("volume: unknown driver kind %v", kind)
	}
}
