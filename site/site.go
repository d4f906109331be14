// Package site models a single container's lifecycle as an explicit state
// machine, grounded on xc::container::running::RunningContainer and the
// ContainerManifest it serializes to. A Site starts Empty, stages a root
// filesystem from an image's chain of ZFS clones, enters Started while the
// reactor package runs its init/main/deinit Jexecs, and finally reaches
// Terminated once every effect it accumulated has been unwound.
package site

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banksean/xcd/effect"
	"github.com/banksean/xcd/image"
	"github.com/banksean/xcd/telemetry"
)

type Stage int

const (
	Empty Stage = iota
	RootFsOnly
	Started
	Terminated
)

func (s Stage) String() string {
	switch s {
	case Empty:
		return "empty"
	case RootFsOnly:
		return "rootfs_only"
	case Started:
		return "started"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Site is the in-memory record of one container, equivalent to
// RunningContainer: the jail's identity, its lifecycle flags, and the
// journal of host effects staged on its behalf.
type Site struct {
	mu sync.Mutex

	ID       string
	Name     string
	Root     string
	Jid      int
	Vnet     bool
	OwnerUID uint32
	stage    Stage

	MainNoRun   bool
	InitNoRun   bool
	DeinitNoRun bool
	NoClean     bool
	Persist     bool

	Config    image.JailConfig
	IPAlloc   []net.IP
	Redirects []Redirect

	Journal *effect.Journal

	Fault      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Redirect is one pf rdr-to rule installed on this Site's behalf, recorded
// so list_site_rdr can report what is currently forwarded to it.
type Redirect struct {
	ExtIface string
	Proto    string
	ExtPort  int
	DestPort int
}

// AddRedirect records a redirect rule already installed against the host's
// pf configuration.
func (s *Site) AddRedirect(r Redirect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Redirects = append(s.Redirects, r)
}

func New(id, name string, backend effect.Backend, cfg image.JailConfig) *Site {
	return &Site{
		ID:        id,
		Name:      name,
		Config:    cfg,
		Journal:   effect.New(backend),
		stage:     Empty,
		CreatedAt: time.Now(),
	}
}

func (s *Site) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// StageRootFs clones the image's chain into dataset, records root as the
// Site's root path (it mounts nothing), and moves the Site from Empty to
// RootFsOnly. A failure leaves effects
// recorded so the caller can Unwind.
func (s *Site) StageRootFs(ctx context.Context, dataset, srcDataset, snapTag, root string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "site.StageRootFs")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != Empty {
		return fmt.Errorf("site %s: cannot stage rootfs from state %s", s.ID, s.stage)
	}
	if err := s.Journal.ZFSClone(ctx, srcDataset, snapTag, dataset); err != nil {
		return fmt.Errorf("site %s: clone rootfs: %w", s.ID, err)
	}
	s.Root = root
	s.stage = RootFsOnly
	return nil
}

// RunContainer moves a Site from RootFsOnly to Started: it is the
// point at which the jail itself is created and init execs run, all of
// which is driven by the reactor package against this Site's Journal and
// Config. RunContainer itself only performs the state transition and
// bookkeeping; actual process supervision belongs to reactor.Reactor.
func (s *Site) RunContainer(jid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != RootFsOnly {
		return fmt.Errorf("site %s: cannot start from state %s", s.ID, s.stage)
	}
	s.Jid = jid
	s.stage = Started
	s.StartedAt = time.Now()
	return nil
}

// Unwind tears down every host effect recorded for this Site and marks it
// Terminated, matching the engine-wide policy that unwind is best-effort
// and always completes.
func (s *Site) Unwind(ctx context.Context) {
	ctx, span := telemetry.Tracer().Start(ctx, "site.Unwind")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Journal.Unwind(ctx)
	s.stage = Terminated
	s.FinishedAt = time.Now()
}

// MarkFault records a fatal condition without forcing an unwind: a Site in
// Fault remains Started so its fault string and post-mortem logs are still
// queryable via show_container until an operator kills it explicitly.
func (s *Site) MarkFault(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fault = reason
}

// Commit snapshots the Site's current root dataset under tag. It only takes
// the zfs snapshot (no manifest or layer tarball is produced) and does not
// alter the Site's own stage.
func (s *Site) Commit(ctx context.Context, dataset, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != Started {
		return fmt.Errorf("site %s: cannot commit from state %s", s.ID, s.stage)
	}
	if err := s.Journal.ZFSSnap(ctx, dataset, tag); err != nil {
		return fmt.Errorf("site %s: commit snapshot: %w", s.ID, err)
	}
	return nil
}
