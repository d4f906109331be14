package freebsd

import (
	"context"
	"fmt"
)

func (h *Host) ifconfig() string {
	if h.IfconfigPath == "" {
		return "ifconfig"
	}
	return h.IfconfigPath
}

// CreateEpair creates a new epair(4) interface pair and returns both ends'
// names, e.g. ("epair0a", "epair0b"). Destroying either end destroys both.
func (h *Host) CreateEpair(ctx context.Context) (a, b string, err error) {
	out, err := h.run(ctx, h.ifconfig(), "epair", "create")
	if err != nil {
		return "", "", err
	}
	base := out
	if len(base) > 1 && base[len(base)-1] == 'a' {
		base = base[:len(base)-1]
	}
	return base + "a", base + "b", nil
}

func (h *Host) CreateEpairUndo(ctx context.Context, a string) error {
	_, err := h.run(ctx, h.ifconfig(), a, "destroy")
	return err
}

// MoveIf moves iface into the vnet of jid.
func (h *Host) MoveIf(ctx context.Context, iface string, jid int) error {
	_, err := h.run(ctx, h.ifconfig(), iface, "vnet", fmt.Sprintf("%d", jid))
	return err
}

// MoveIfUndo moves iface back to the host's default vnet (jid 0, "-vnet").
func (h *Host) MoveIfUndo(ctx context.Context, iface string) error {
	_, err := h.run(ctx, h.ifconfig(), iface, "-vnet", "0")
	return err
}

func (h *Host) IfaceCreateAlias(ctx context.Context, iface, cidr string) error {
	_, err := h.run(ctx, h.ifconfig(), iface, "alias", cidr)
	return err
}

func (h *Host) IfaceCreateAliasUndo(ctx context.Context, iface, cidr string) error {
	_, err := h.run(ctx, h.ifconfig(), iface, "-alias", cidr)
	return err
}

func (h *Host) IfaceUp(ctx context.Context, iface string) error {
	_, err := h.run(ctx, h.ifconfig(), iface, "up")
	return err
}

func (h *Host) BridgeAddIface(ctx context.Context, bridge, iface string) error {
	_, err := h.run(ctx, h.ifconfig(), bridge, "addm", iface)
	return err
}

func (h *Host) BridgeAddIfaceUndo(ctx context.Context, bridge, iface string) error {
	_, err := h.run(ctx, h.ifconfig(), bridge, "deletem", iface)
	return err
}

// CreateTun is flagged in spec.md §9 open question (a): the original
// implementation invoked "ifconfig tap create" under a function named
// create_tun, which looks like a bug. We preserve the literal behavior
// (tap, not tun) rather than silently "fixing" semantics spec.md leaves
// undefined, and surface the discrepancy here for implementers.
func (h *Host) CreateTun(ctx context.Context) (string, error) {
	return h.run(ctx, h.ifconfig(), "tap", "create")
}
