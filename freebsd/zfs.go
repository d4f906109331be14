// Package freebsd wraps the host command-line tools and syscalls this
// engine depends on: zfs(8), ifconfig(8), pfctl(8), devfs(8), jail
// syscalls, kqueue, and process descriptors. It is the sole place that
// shells out to host commands (control and reactor also call
// golang.org/x/sys/unix directly), grounded on the teacher's
// applecontainer package convention of one small os/exec wrapper per host
// command.
package freebsd

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Host implements effect.Backend against real FreeBSD host tools.
type Host struct {
	// ZFSPath, IfconfigPath, PfctlPath, DevfsPath, JailPath, JlsPath allow
	// tests and alternative deployments to point at instrumented
	// stand-ins; they default to the bare command name, resolved via
	// $PATH.
	ZFSPath      string
	IfconfigPath string
	PfctlPath    string
	DevfsPath    string
	JailPath     string
	JlsPath      string
}

func NewHost() *Host {
	return &Host{
		ZFSPath:      "zfs",
		IfconfigPath: "ifconfig",
		PfctlPath:    "pfctl",
		DevfsPath:    "devfs",
		JailPath:     "jail",
		JlsPath:      "jls",
	}
}

func (h *Host) zfs() string {
	if h.ZFSPath == "" {
		return "zfs"
	}
	return h.ZFSPath
}

func (h *Host) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	slog.DebugContext(ctx, "freebsd.Host.run", "cmd", strings.Join(cmd.Args, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w (output: %s)", name, strings.Join(args, " "), err, bytes(out))
	}
	return strings.TrimSpace(string(out)), nil
}

func bytes(b []byte) string { return string(b) }

func (h *Host) runWithStdin(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	slog.DebugContext(ctx, "freebsd.Host.run", "cmd", strings.Join(cmd.Args, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w (output: %s)", name, strings.Join(args, " "), err, bytes(out))
	}
	return strings.TrimSpace(string(out)), nil
}

func (h *Host) ZFSCreate(ctx context.Context, dataset string) error {
	_, err := h.run(ctx, h.zfs(), "create", "-p", dataset)
	return err
}

func (h *Host) ZFSCreateUndo(ctx context.Context, dataset string) error {
	_, err := h.run(ctx, h.zfs(), "destroy", "-rRf", dataset)
	return err
}

func (h *Host) ZFSClone(ctx context.Context, srcDataset, snapTag, destDataset string) error {
	snapshot := srcDataset + "@" + snapTag
	_, err := h.run(ctx, h.zfs(), "clone", "-p", snapshot, destDataset)
	return err
}

func (h *Host) ZFSCloneUndo(ctx context.Context, destDataset string) error {
	_, err := h.run(ctx, h.zfs(), "destroy", "-rRf", destDataset)
	return err
}

func (h *Host) ZFSSnap(ctx context.Context, dataset, tag string) error {
	_, err := h.run(ctx, h.zfs(), "snapshot", dataset+"@"+tag)
	return err
}

func (h *Host) ZFSSnapUndo(ctx context.Context, dataset, tag string) error {
	_, err := h.run(ctx, h.zfs(), "destroy", dataset+"@"+tag)
	return err
}

// MountPoint reads the "mountpoint" property of dataset.
func (h *Host) MountPoint(ctx context.Context, dataset string) (string, error) {
	return h.run(ctx, h.zfs(), "get", "-H", "-o", "value", "mountpoint", dataset)
}

// OriginOf reads the "origin" property of a cloned dataset (empty if none).
func (h *Host) OriginOf(ctx context.Context, dataset string) (string, error) {
	out, err := h.run(ctx, h.zfs(), "get", "-H", "-o", "value", "origin", dataset)
	if err != nil {
		return "", err
	}
	if out == "-" {
		return "", nil
	}
	return out, nil
}

// Set applies an arbitrary ZFS property to dataset, e.g. for volume
// drivers that accept caller-supplied zfs properties at creation time.
func (h *Host) Set(ctx context.Context, dataset, prop, value string) (string, error) {
	return h.run(ctx, h.zfs(), "set", prop+"="+value, dataset)
}

func (h *Host) JailDataset(ctx context.Context, jid int, dataset string) error {
	_, err := h.run(ctx, h.zfs(), "jail", fmt.Sprintf("%d", jid), dataset)
	return err
}

func (h *Host) SetJailed(ctx context.Context, dataset string, jailed bool) error {
	v := "off"
	if jailed {
		v = "on"
	}
	_, err := h.run(ctx, h.zfs(), "set", "jailed="+v, dataset)
	return err
}
