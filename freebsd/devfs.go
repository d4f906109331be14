package freebsd

import (
	"context"
	"fmt"
	"strings"
)

func (h *Host) devfs() string {
	if h.DevfsPath == "" {
		return "devfs"
	}
	return h.DevfsPath
}

// InstallRuleset (re)installs a devfs ruleset at id from rules, one
// devfs.rules-file line per entry (e.g. "add path 'null' unhide"). A
// preexisting ruleset at id is cleared first since devfs has no atomic
// replace: delete, then create, mirroring the host devfs(8) command
// sequence a jail operator would type by hand.
func (h *Host) InstallRuleset(ctx context.Context, id int, rules []string) error {
	if _, err := h.run(ctx, h.devfs(), "rule", "-s", fmt.Sprintf("%d", id), "delset"); err != nil {
		// a ruleset with no rules yet returns an error; proceed regardless.
		_ = err
	}
	for _, rule := range rules {
		fields := strings.Fields(rule)
		args := append([]string{"rule", "-s", fmt.Sprintf("%d", id)}, fields...)
		if _, err := h.run(ctx, h.devfs(), args...); err != nil {
			return fmt.Errorf("install devfs rule %q at ruleset %d: %w", rule, id, err)
		}
	}
	return nil
}

// ApplyRuleset attaches ruleset id to the devfs mount at mountpoint.
func (h *Host) ApplyRuleset(ctx context.Context, mountpoint string, id int) error {
	_, err := h.run(ctx, h.devfs(), "-m", mountpoint, "ruleset", fmt.Sprintf("%d", id))
	if err != nil {
		return err
	}
	_, err = h.run(ctx, h.devfs(), "-m", mountpoint, "rule", "applyset")
	return err
}

func (h *Host) ClearRuleset(ctx context.Context, id int) error {
	_, err := h.run(ctx, h.devfs(), "rule", "-s", fmt.Sprintf("%d", id), "delset")
	return err
}
