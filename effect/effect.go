// Package effect implements the container-construction effect journal
// described in spec.md §4.1: an ordered, append-only record of reversible
// host side effects, unwound in LIFO order on failure or on container
// teardown.
package effect

import (
	"context"
	"log/slog"
)

// Kind tags the sum type of recordable effects.
type Kind int

const (
	KindZFSCreate Kind = iota
	KindZFSClone
	KindZFSSnap
	KindMoveIf
	KindIfaceAlias
	KindIfaceUp
	KindBridgeAddIface
	KindMount
	KindCreateEpair
	KindPFTableAdd
	KindPFCreateAnchor
	KindJailDataset
	KindDupFd
)

func (k Kind) String() string {
	switch k {
	case KindZFSCreate:
		return "zfs_create"
	case KindZFSClone:
		return "zfs_clone"
	case KindZFSSnap:
		return "zfs_snap"
	case KindMoveIf:
		return "move_if"
	case KindIfaceAlias:
		return "iface_create_alias"
	case KindIfaceUp:
		return "iface_up"
	case KindBridgeAddIface:
		return "bridge_add_iface"
	case KindMount:
		return "mount"
	case KindCreateEpair:
		return "create_epair"
	case KindPFTableAdd:
		return "pf_table_add_address"
	case KindPFCreateAnchor:
		return "pf_create_anchor"
	case KindJailDataset:
		return "jail_dataset"
	case KindDupFd:
		return "dup_fd"
	default:
		return "unknown"
	}
}

// Backend performs the actual host operations. It is implemented by
// freebsd.Host in production and by a fake in tests.
type Backend interface {
	ZFSCreate(ctx context.Context, dataset string) error
	ZFSCreateUndo(ctx context.Context, dataset string) error
	ZFSClone(ctx context.Context, srcDataset, snapTag, destDataset string) error
	ZFSCloneUndo(ctx context.Context, destDataset string) error
	ZFSSnap(ctx context.Context, dataset, tag string) error
	ZFSSnapUndo(ctx context.Context, dataset, tag string) error
	MoveIf(ctx context.Context, iface string, jid int) error
	MoveIfUndo(ctx context.Context, iface string) error
	IfaceCreateAlias(ctx context.Context, iface, cidr string) error
	IfaceCreateAliasUndo(ctx context.Context, iface, cidr string) error
	IfaceUp(ctx context.Context, iface string) error
	BridgeAddIface(ctx context.Context, bridge, iface string) error
	BridgeAddIfaceUndo(ctx context.Context, bridge, iface string) error
	Mount(ctx context.Context, fsType string, opts []string, source, mountpoint string) error
	MountUndo(ctx context.Context, mountpoint string) error
	CreateEpair(ctx context.Context) (a, b string, err error)
	CreateEpairUndo(ctx context.Context, a string) error
	PFTableAddAddress(ctx context.Context, anchor, table, cidr string) error
	PFTableAddAddressUndo(ctx context.Context, anchor, table, cidr string) error
	PFCreateAnchor(ctx context.Context, anchor string) error
	PFCreateAnchorUndo(ctx context.Context, anchor string) error
	JailDataset(ctx context.Context, jid int, dataset string) error
	DupFd(ctx context.Context, rawFd int) (int, error)
	DupFdUndo(ctx context.Context, dupedFd int) error
}

// Record is one entry in the journal: its captured inputs, and for effects
// that return an identifier, the captured result.
type Record struct {
	Kind Kind

	// Inputs, populated according to Kind.
	Dataset     string
	SrcDataset  string
	SnapTag     string
	DestDataset string
	Iface       string
	CIDR        string
	Bridge      string
	FSType      string
	MountOpts   []string
	Source      string
	Mountpoint  string
	Anchor      string
	Table       string
	Jid         int
	RawFd       int

	// Captured results.
	EpairA, EpairB string
	DupedFd        int
}

// Journal is an ordered sequence of Records, extended under the engine's
// lock and consumed once, in reverse, on unwind.
type Journal struct {
	backend Backend
	records []Record
}

// New creates an empty journal bound to backend.
func New(backend Backend) *Journal {
	return &Journal{backend: backend}
}

// Len reports how many effects have been recorded.
func (j *Journal) Len() int { return len(j.records) }

// append records r only after the forward operation it describes has
// already succeeded, preserving "if step k was recorded, 1..k-1 were too".
func (j *Journal) append(r Record) {
	j.records = append(j.records, r)
}

func (j *Journal) ZFSCreate(ctx context.Context, dataset string) error {
	if err := j.backend.ZFSCreate(ctx, dataset); err != nil {
		return err
	}
	j.append(Record{Kind: KindZFSCreate, Dataset: dataset})
	return nil
}

func (j *Journal) ZFSClone(ctx context.Context, srcDataset, snapTag, destDataset string) error {
	if err := j.backend.ZFSClone(ctx, srcDataset, snapTag, destDataset); err != nil {
		return err
	}
	j.append(Record{Kind: KindZFSClone, SrcDataset: srcDataset, SnapTag: snapTag, DestDataset: destDataset})
	return nil
}

func (j *Journal) ZFSSnap(ctx context.Context, dataset, tag string) error {
	if err := j.backend.ZFSSnap(ctx, dataset, tag); err != nil {
		return err
	}
	j.append(Record{Kind: KindZFSSnap, Dataset: dataset, SnapTag: tag})
	return nil
}

func (j *Journal) MoveIf(ctx context.Context, iface string, jid int) error {
	if err := j.backend.MoveIf(ctx, iface, jid); err != nil {
		return err
	}
	j.append(Record{Kind: KindMoveIf, Iface: iface, Jid: jid})
	return nil
}

func (j *Journal) IfaceCreateAlias(ctx context.Context, iface, cidr string) error {
	if err := j.backend.IfaceCreateAlias(ctx, iface, cidr); err != nil {
		return err
	}
	j.append(Record{Kind: KindIfaceAlias, Iface: iface, CIDR: cidr})
	return nil
}

func (j *Journal) IfaceUp(ctx context.Context, iface string) error {
	if err := j.backend.IfaceUp(ctx, iface); err != nil {
		return err
	}
	// unwind is deliberately a no-op (spec.md §4.1), still recorded so the
	// journal's ordering invariant holds for auditing.
	j.append(Record{Kind: KindIfaceUp, Iface: iface})
	return nil
}

func (j *Journal) BridgeAddIface(ctx context.Context, bridge, iface string) error {
	if err := j.backend.BridgeAddIface(ctx, bridge, iface); err != nil {
		return err
	}
	j.append(Record{Kind: KindBridgeAddIface, Bridge: bridge, Iface: iface})
	return nil
}

func (j *Journal) Mount(ctx context.Context, fsType string, opts []string, source, mountpoint string) error {
	if err := j.backend.Mount(ctx, fsType, opts, source, mountpoint); err != nil {
		return err
	}
	j.append(Record{Kind: KindMount, FSType: fsType, MountOpts: opts, Source: source, Mountpoint: mountpoint})
	return nil
}

func (j *Journal) CreateEpair(ctx context.Context) (a, b string, err error) {
	a, b, err = j.backend.CreateEpair(ctx)
	if err != nil {
		return "", "", err
	}
	j.append(Record{Kind: KindCreateEpair, EpairA: a, EpairB: b})
	return a, b, nil
}

func (j *Journal) PFTableAddAddress(ctx context.Context, anchor, table, cidr string) error {
	if err := j.backend.PFTableAddAddress(ctx, anchor, table, cidr); err != nil {
		return err
	}
	j.append(Record{Kind: KindPFTableAdd, Anchor: anchor, Table: table, CIDR: cidr})
	return nil
}

func (j *Journal) PFCreateAnchor(ctx context.Context, anchor string) error {
	if err := j.backend.PFCreateAnchor(ctx, anchor); err != nil {
		return err
	}
	j.append(Record{Kind: KindPFCreateAnchor, Anchor: anchor})
	return nil
}

func (j *Journal) JailDataset(ctx context.Context, jid int, dataset string) error {
	if err := j.backend.JailDataset(ctx, jid, dataset); err != nil {
		return err
	}
	j.append(Record{Kind: KindJailDataset, Jid: jid, Dataset: dataset})
	// unwind: none — destroying the jail first implies unjail (spec.md §4.1).
	return nil
}

// DupFd records a duplicated raw descriptor used to hold a reference to the
// container's init supervisor; its unwind reads the pid from the process
// descriptor and sends SIGKILL (spec.md §4.1, §9 open question (b)).
func (j *Journal) DupFd(ctx context.Context, rawFd int) error {
	duped, err := j.backend.DupFd(ctx, rawFd)
	if err != nil {
		return err
	}
	j.append(Record{Kind: KindDupFd, RawFd: rawFd, DupedFd: duped})
	return nil
}

// Unwind runs every recorded effect's inverse in LIFO order, best-effort: an
// individual unwind failure is logged and does not prevent the rest from
// running (spec.md §4.1, §8 "Journal idempotence under rollback").
func (j *Journal) Unwind(ctx context.Context) {
	for i := len(j.records) - 1; i >= 0; i-- {
		r := j.records[i]
		if err := j.unwindOne(ctx, r); err != nil {
			slog.ErrorContext(ctx, "effect.Journal.Unwind step failed", "kind", r.Kind.String(), "error", err)
		}
	}
	j.records = nil
}

func (j *Journal) unwindOne(ctx context.Context, r Record) error {
	switch r.Kind {
	case KindZFSCreate:
		return j.backend.ZFSCreateUndo(ctx, r.Dataset)
	case KindZFSClone:
		return j.backend.ZFSCloneUndo(ctx, r.DestDataset)
	case KindZFSSnap:
		return j.backend.ZFSSnapUndo(ctx, r.Dataset, r.SnapTag)
	case KindMoveIf:
		return j.backend.MoveIfUndo(ctx, r.Iface)
	case KindIfaceAlias:
		return j.backend.IfaceCreateAliasUndo(ctx, r.Iface, r.CIDR)
	case KindIfaceUp:
		return nil // deliberate no-op
	case KindBridgeAddIface:
		return j.backend.BridgeAddIfaceUndo(ctx, r.Bridge, r.Iface)
	case KindMount:
		return j.backend.MountUndo(ctx, r.Mountpoint)
	case KindCreateEpair:
		return j.backend.CreateEpairUndo(ctx, r.EpairA)
	case KindPFTableAdd:
		return j.backend.PFTableAddAddressUndo(ctx, r.Anchor, r.Table, r.CIDR)
	case KindPFCreateAnchor:
		return j.backend.PFCreateAnchorUndo(ctx, r.Anchor)
	case KindJailDataset:
		return nil // none — jail destruction implies unjail
	case KindDupFd:
		return j.backend.DupFdUndo(ctx, r.DupedFd)
	default:
		return nil
	}
}
