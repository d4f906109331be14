package freebsd

import (
	"context"
	"fmt"
)

func (h *Host) pfctl() string {
	if h.PfctlPath == "" {
		return "pfctl"
	}
	return h.PfctlPath
}

func anchorArgs(anchor string) []string {
	if anchor == "" {
		return nil
	}
	return []string{"-a", anchor}
}

func (h *Host) PFCreateAnchor(ctx context.Context, anchor string) error {
	// pfctl has no explicit "create anchor" verb; an anchor comes into
	// existence the first time a ruleset is loaded into it. An empty
	// load establishes it as present and query-able.
	args := append(anchorArgs(anchor), "-f", "/dev/stdin")
	_, err := h.runStdin(ctx, "", h.pfctl(), args...)
	return err
}

func (h *Host) PFCreateAnchorUndo(ctx context.Context, anchor string) error {
	args := append(anchorArgs(anchor), "-F", "all")
	_, err := h.run(ctx, h.pfctl(), args...)
	return err
}

func (h *Host) PFTableAddAddress(ctx context.Context, anchor, table, cidr string) error {
	args := append(anchorArgs(anchor), "-t", table, "-T", "add", cidr)
	_, err := h.run(ctx, h.pfctl(), args...)
	return err
}

func (h *Host) PFTableAddAddressUndo(ctx context.Context, anchor, table, cidr string) error {
	args := append(anchorArgs(anchor), "-t", table, "-T", "delete", cidr)
	_, err := h.run(ctx, h.pfctl(), args...)
	return err
}

// Redirect installs a single rdr-to rule in anchor redirecting proto/port
// on extIface to the container's internal address and port.
func (h *Host) Redirect(ctx context.Context, anchor, extIface, proto string, extPort int, dest string, destPort int) error {
	rule := fmt.Sprintf("rdr pass on %s proto %s from any to any port %d -> %s port %d\n",
		extIface, proto, extPort, dest, destPort)
	args := append(anchorArgs(anchor), "-f", "/dev/stdin")
	_, err := h.runStdin(ctx, rule, h.pfctl(), args...)
	return err
}

func (h *Host) runStdin(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	return h.runWithStdin(ctx, stdin, name, args...)
}
