package freebsd

import "context"

// Mount mounts a filesystem of fsType at mountpoint. For nullfs mounts,
// source is the directory bound in; for devfs, source is ignored.
func (h *Host) Mount(ctx context.Context, fsType string, opts []string, source, mountpoint string) error {
	args := []string{"-t", fsType}
	for _, o := range opts {
		args = append(args, "-o", o)
	}
	if source != "" {
		args = append(args, source)
	}
	args = append(args, mountpoint)
	_, err := h.run(ctx, "mount", args...)
	return err
}

func (h *Host) MountUndo(ctx context.Context, mountpoint string) error {
	_, err := h.run(ctx, "umount", "-f", mountpoint)
	return err
}
