package freebsd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func (h *Host) jail() string {
	if h.JailPath == "" {
		return "jail"
	}
	return h.JailPath
}

func (h *Host) jls() string {
	if h.JlsPath == "" {
		return "jls"
	}
	return h.JlsPath
}

// JailCreate creates a persistent jail named name rooted at path with the
// given jail(8) parameters (e.g. "ip4.addr", "vnet", "host.hostname") and
// returns its numeric jid, resolved via jls since jail(8) itself prints no
// stable machine-readable id on create.
func (h *Host) JailCreate(ctx context.Context, name, path string, params map[string]string) (int, error) {
	args := []string{"-c", "name=" + name, "path=" + path, "persist"}
	for k, v := range params {
		args = append(args, k+"="+v)
	}
	if _, err := h.run(ctx, h.jail(), args...); err != nil {
		return 0, fmt.Errorf("jail create %s: %w", name, err)
	}
	jid, err := h.jlsJid(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("jail create %s: %w", name, err)
	}
	return jid, nil
}

// JailCreateUndo removes the jail, killing any processes still attached to
// it.
func (h *Host) JailCreateUndo(ctx context.Context, name string) error {
	_, err := h.run(ctx, h.jail(), "-r", name)
	return err
}

func (h *Host) jlsJid(ctx context.Context, name string) (int, error) {
	out, err := h.run(ctx, h.jls(), "-j", name, "jid")
	if err != nil {
		return 0, err
	}
	jid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse jid from jls output %q: %w", out, err)
	}
	return jid, nil
}
