// Package xcdserver wires every other package into the running daemon:
// it owns the configuration, the sqlite store, the per-network address
// pools, the devfs ruleset cache, and the table of control-socket methods
// xc (or a Jailfile build) can call, grounded on the method surface
// implied by xc-bin's use_*_action request/response helpers (do_list_containers,
// do_instantiate, do_commit_container, do_kill_container, and so on).
package xcdserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"

	"github.com/goombaio/namegenerator"

	"github.com/banksean/xcd/config"
	"github.com/banksean/xcd/control"
	"github.com/banksean/xcd/devfscache"
	"github.com/banksean/xcd/freebsd"
	"github.com/banksean/xcd/image"
	"github.com/banksean/xcd/imgref"
	"github.com/banksean/xcd/netalloc"
	"github.com/banksean/xcd/reactor"
	"github.com/banksean/xcd/registry"
	"github.com/banksean/xcd/site"
	"github.com/banksean/xcd/store"
	"github.com/banksean/xcd/volume"
)

// defaultSnapTag is the snapshot tag every staged image dataset is cloned
// from, a fixed convention rather than a per-image value since this engine
// keeps exactly one ready-to-clone snapshot per chain id.
const defaultSnapTag = "ready"

// defaultDevfsRules is the devfs(8) ruleset every jail gets unless a
// Jailfile build customizes it, mirroring a minimal, uncontroversial set of
// unhidden device nodes a userland process typically needs.
var defaultDevfsRules = []string{
	"add path 'null' unhide",
	"add path 'zero' unhide",
	"add path 'random' unhide",
	"add path 'urandom' unhide",
	"add path 'pts/*' unhide",
}

// Server is the daemon's top-level context: one per xcd process.
type Server struct {
	mu sync.Mutex

	Config   config.Config
	Host     *freebsd.Host
	Store    *store.Store
	Devfs    *devfscache.Store
	Registry *registry.Client
	names    namegenerator.Generator

	pools     map[string]*netalloc.Pool
	sites     map[string]*site.Site
	reactors  map[string]*reactor.Reactor
	volumes   map[string]volume.Volume
	netgroups map[string][]string
	channels  map[string]string
}

// New assembles a Server from a loaded Config and opened Store. The
// daemon's main (cmd/xcd) is responsible for calling Open on both and
// passing them in.
func New(cfg config.Config, host *freebsd.Host, st *store.Store, reg *registry.Client) *Server {
	s := &Server{
		Config:    cfg,
		Host:      host,
		Store:     st,
		Registry:  reg,
		Devfs:     devfscache.New(host, int(cfg.DevfsIDOffset), 64535-int(cfg.DevfsIDOffset)),
		names:     namegenerator.NewNameGenerator(1),
		pools:     map[string]*netalloc.Pool{},
		sites:     map[string]*site.Site{},
		reactors:  map[string]*reactor.Reactor{},
		volumes:   map[string]volume.Volume{},
		netgroups: map[string][]string{},
		channels:  map[string]string{},
	}
	return s
}

// GenerateName produces a human-friendly container name the way "xc run"
// does when the caller does not supply one, grounded on the teacher
// repo's use of goombaio/namegenerator for the same purpose.
func (s *Server) GenerateName() string {
	return s.names.Generate()
}

// --- request/response payloads -------------------------------------------------

type InstantiateRequest struct {
	Image   string            `json:"image"`
	Name    string            `json:"name,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Vnet    bool              `json:"vnet,omitempty"`
	Network string            `json:"network,omitempty"`
}

type InstantiateResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Jid  int    `json:"jid"`
}

type ShowContainerRequest struct {
	ID string `json:"id"`
}

type ContainerSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Jid   int    `json:"jid"`
	Stage string `json:"stage"`
	Fault string `json:"fault,omitempty"`
}

type KillContainerRequest struct {
	Name string `json:"name"`
}

type CommitContainerRequest struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

type CreateNetworkRequest struct {
	Name          string `json:"name"`
	Bridge        string `json:"bridge"`
	Subnet        string `json:"subnet"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`
	AliasIface    string `json:"alias_iface,omitempty"`
	DefaultRouter string `json:"default_router,omitempty"`
}

type CreateVolumeRequest struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Device string `json:"device"`
}

type AddContainerToNetgroupRequest struct {
	Netgroup string `json:"netgroup"`
	Name     string `json:"name"`
}

type CommitNetgroupRequest struct {
	Netgroup string `json:"netgroup"`
}

type RdrContainerRequest struct {
	Name     string `json:"name"`
	ExtIface string `json:"ext_iface"`
	Proto    string `json:"proto"`
	ExtPort  int    `json:"ext_port"`
	DestPort int    `json:"dest_port"`
}

type ListSiteRdrRequest struct {
	Name string `json:"name"`
}

type SiteRedirect struct {
	ExtIface string `json:"ext_iface"`
	Proto    string `json:"proto"`
	ExtPort  int    `json:"ext_port"`
	DestPort int    `json:"dest_port"`
}

type CreateChannelRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// --- handlers --------------------------------------------------------------

func (s *Server) Instantiate(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req InstantiateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	ref, err := imgref.Parse(req.Image)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	name := req.Name
	if name == "" {
		name = s.GenerateName()
	}
	id := fmt.Sprintf("%s-%08x", name, len(s.sites))

	cfg, err := s.resolveJailConfig(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	for k, v := range req.Env {
		if cfg.Env == nil {
			cfg.Env = map[string]string{}
		}
		cfg.Env[k] = v
	}
	cfg.Image = ref

	st := site.New(id, name, s.Host, cfg)
	st.OwnerUID = cc.Credential.UID
	st.Vnet = req.Vnet
	st.MainNoRun = cfg.Main == nil || len(cfg.Main) == 0
	st.InitNoRun = cfg.NoInit
	st.DeinitNoRun = cfg.NoDeinit

	jid, err := s.stageAndRun(ctx, st, req.Network)
	if err != nil {
		st.MarkFault(err.Error())
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	bp, err := s.buildBlueprint(st, jid)
	if err != nil {
		st.MarkFault(err.Error())
		return nil, fmt.Errorf("instantiate: build lifecycle: %w", err)
	}

	socketPath := fmt.Sprintf("%s/%s.sock", filepath.Dir(s.Config.SocketPath), id)
	r, err := reactor.New(id, socketPath, s.BuildTable(), bp)
	if err != nil {
		st.MarkFault(err.Error())
		return nil, fmt.Errorf("instantiate: start reactor: %w", err)
	}

	s.mu.Lock()
	s.sites[id] = st
	s.reactors[name] = r
	s.mu.Unlock()

	go func() {
		if err := r.Run(context.Background(), freebsd.JailLauncher{}); err != nil {
			slog.Error("reactor exited with error", "container", id, "err", err)
		}
	}()

	slog.InfoContext(ctx, "instantiated container", "id", id, "name", name, "image", req.Image, "jid", jid)
	return InstantiateResponse{ID: id, Name: name, Jid: jid}, nil
}

// resolveJailConfig looks up ref's JailConfig from a prior build (the
// sqlite-backed image_manifests table), falling back to fetching the
// image directly from the registry and synthesizing a config from its OCI
// config the way "docker run" would treat an upstream image that was never
// built with a Jailfile.
func (s *Server) resolveJailConfig(ctx context.Context, ref imgref.Reference) (image.JailConfig, error) {
	tag := string(ref.Tag)
	if tag == "" && ref.Digest != nil {
		tag = ref.Digest.String()
	}
	if digest, err := s.Store.ResolveTag(ctx, ref.Name, tag); err == nil {
		row, err := s.Store.GetManifest(ctx, digest)
		if err == nil {
			var cfg image.JailConfig
			if err := json.Unmarshal(row.ConfigRaw, &cfg); err == nil {
				return cfg, nil
			}
		}
	}

	img, err := s.Registry.FetchManifest(ref)
	if err != nil {
		return image.JailConfig{}, fmt.Errorf("resolve image %s: %w", imgref.Format(ref), err)
	}
	cfgFile, err := img.ConfigFile()
	if err != nil {
		return image.JailConfig{}, fmt.Errorf("read config of %s: %w", imgref.Format(ref), err)
	}
	digest, err := img.Digest()
	if err != nil {
		return image.JailConfig{}, fmt.Errorf("digest of %s: %w", imgref.Format(ref), err)
	}
	cfg := image.FromLegacyOCIConfig(ref, image.ChainID(digest.String()), cfgFile.Config)

	if raw, err := json.Marshal(cfg); err == nil {
		_ = s.Store.PutManifest(ctx, store.ImageManifestRow{Digest: digest.String(), ChainID: string(cfg.ChainID), ConfigRaw: raw})
		_ = s.Store.TagManifest(ctx, ref.Name, tag, digest.String())
	}
	return cfg, nil
}

// stageAndRun clones the image's rootfs, wires networking if requested,
// creates the jail, and moves the Site from Empty to Started. It returns
// the new jail's numeric jid.
func (s *Server) stageAndRun(ctx context.Context, st *site.Site, networkName string) (int, error) {
	imageDataset := fmt.Sprintf("%s/%s", s.Config.ImageDataset, st.Config.ChainID)
	containerDataset := fmt.Sprintf("%s/%s", s.Config.ContainerDataset, st.ID)
	root, err := s.Host.MountPoint(ctx, s.Config.ContainerDataset)
	if err != nil {
		root = "/" + s.Config.ContainerDataset
	}
	root = fmt.Sprintf("%s/%s", root, st.ID)

	if err := st.StageRootFs(ctx, containerDataset, imageDataset, defaultSnapTag, root); err != nil {
		return 0, err
	}

	params := map[string]string{"host.hostname": st.Name}
	for _, allow := range st.Config.Allow {
		params["allow."+allow] = "1"
	}

	var vnetIface string
	if st.Vnet && networkName != "" {
		s.mu.Lock()
		pool, ok := s.pools[networkName]
		s.mu.Unlock()
		if !ok {
			return 0, fmt.Errorf("no such network %q", networkName)
		}
		addr, err := pool.NextAddress(st.ID)
		if err != nil {
			return 0, fmt.Errorf("allocate address on %s: %w", networkName, err)
		}
		epairA, epairB, err := st.Journal.CreateEpair(ctx)
		if err != nil {
			return 0, fmt.Errorf("create epair: %w", err)
		}
		bridge := s.Config.Networks[networkName].Bridge
		if bridge != "" {
			if err := st.Journal.BridgeAddIface(ctx, bridge, epairA); err != nil {
				return 0, fmt.Errorf("attach %s to bridge %s: %w", epairA, bridge, err)
			}
		}
		if err := st.Journal.IfaceUp(ctx, epairA); err != nil {
			return 0, fmt.Errorf("bring up %s: %w", epairA, err)
		}
		st.IPAlloc = append(st.IPAlloc, addr)
		vnetIface = epairB
		params["vnet"] = "new"
		params["vnet.interface"] = epairB
	}

	params["path"] = root
	jid, err := s.Host.JailCreate(ctx, st.ID, root, params)
	if err != nil {
		return 0, fmt.Errorf("create jail: %w", err)
	}
	if err := s.Host.SetJailed(ctx, containerDataset, true); err == nil {
		if err := st.Journal.JailDataset(ctx, jid, containerDataset); err != nil {
			return 0, fmt.Errorf("hand dataset %s into jid %d: %w", containerDataset, jid, err)
		}
	}
	if vnetIface != "" && len(st.IPAlloc) > 0 {
		if err := st.Journal.MoveIf(ctx, vnetIface, jid); err != nil {
			return 0, fmt.Errorf("move %s into jid %d: %w", vnetIface, jid, err)
		}
	}

	rulesetID, err := s.Devfs.GetRulesetID(ctx, defaultDevfsRules)
	if err == nil {
		_ = s.Host.ApplyRuleset(ctx, root+"/dev", rulesetID)
	}

	if err := st.RunContainer(jid); err != nil {
		return 0, err
	}
	return jid, nil
}

// buildBlueprint resolves a Site's JailConfig init/main/deinit Execs
// against its running jid into a reactor.Blueprint. JailConfig.Main is a
// slice (a Jailfile can declare more than one CMD-equivalent override) but
// only the last one wins, matching how a later CMD directive in a Jailfile
// supersedes an earlier one rather than both running.
func (s *Server) buildBlueprint(st *site.Site, jid int) (reactor.Blueprint, error) {
	bp := reactor.Blueprint{
		Jid:         jid,
		MainNoRun:   st.MainNoRun,
		InitNoRun:   st.InitNoRun,
		DeinitNoRun: st.DeinitNoRun,
		NoClean:     st.NoClean,
		Persist:     st.Persist,
	}
	for i, e := range st.Config.Init {
		jexec, err := image.ResolveJexec(e, jid, st.Config.Env)
		if err != nil {
			return bp, fmt.Errorf("resolve init step %d: %w", i, err)
		}
		bp.Init = append(bp.Init, reactor.Step{Exec: jexec, Required: e.Required, Description: fmt.Sprintf("init[%d]", i)})
	}
	if len(st.Config.Main) > 0 {
		e := st.Config.Main[len(st.Config.Main)-1]
		jexec, err := image.ResolveJexec(e, jid, st.Config.Env)
		if err != nil {
			return bp, fmt.Errorf("resolve main: %w", err)
		}
		bp.Main = &reactor.Step{Exec: jexec, Required: e.Required, Description: "main"}
	}
	for i, e := range st.Config.Deinit {
		jexec, err := image.ResolveJexec(e, jid, st.Config.Env)
		if err != nil {
			return bp, fmt.Errorf("resolve deinit step %d: %w", i, err)
		}
		bp.Deinit = append(bp.Deinit, reactor.Step{Exec: jexec, Required: e.Required, Description: fmt.Sprintf("deinit[%d]", i)})
	}
	return bp, nil
}

func (s *Server) ShowContainer(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req ShowContainerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("show_container: %w", err)
	}
	s.mu.Lock()
	st, ok := s.sites[req.ID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("show_container: no such container %q", req.ID)
	}
	return ContainerSummary{ID: st.ID, Name: st.Name, Jid: st.Jid, Stage: st.Stage().String(), Fault: st.Fault}, nil
}

func (s *Server) ListContainers(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ContainerSummary, 0, len(s.sites))
	for _, st := range s.sites {
		out = append(out, ContainerSummary{ID: st.ID, Name: st.Name, Jid: st.Jid, Stage: st.Stage().String(), Fault: st.Fault})
	}
	return out, nil
}

func (s *Server) KillContainer(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req KillContainerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("kill_container: %w", err)
	}
	s.mu.Lock()
	st, ok := findByName(s.sites, req.Name)
	name := req.Name
	if ok {
		name = st.Name
	}
	r := s.reactors[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("kill_container: no such container %q", req.Name)
	}
	if err := requireOwner(cc.Credential, st.OwnerUID); err != nil {
		return nil, fmt.Errorf("kill_container: %w", err)
	}
	if r != nil {
		if err := r.Kill(); err != nil {
			return nil, fmt.Errorf("kill_container: %w", err)
		}
	}
	st.Unwind(ctx)
	return struct{}{}, nil
}

func (s *Server) CommitContainer(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req CommitContainerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("commit_container: %w", err)
	}
	s.mu.Lock()
	st, ok := findByName(s.sites, req.Name)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("commit_container: no such container %q", req.Name)
	}
	if err := requireOwner(cc.Credential, st.OwnerUID); err != nil {
		return nil, fmt.Errorf("commit_container: %w", err)
	}
	dataset := fmt.Sprintf("%s/%s", s.Config.ContainerDataset, st.ID)
	if err := st.Commit(ctx, dataset, req.Tag); err != nil {
		return nil, fmt.Errorf("commit_container: %w", err)
	}
	return struct{ CommitID string `json:"commit_id"` }{CommitID: req.Tag}, nil
}

func (s *Server) CreateNetwork(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req CreateNetworkRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("create_network: %w", err)
	}
	_, subnet, err := parseCIDR(req.Subnet)
	if err != nil {
		return nil, fmt.Errorf("create_network: %w", err)
	}

	start := subnet.IP
	end := lastAddrOf(subnet)
	if req.Start != "" {
		if ip := net.ParseIP(req.Start).To4(); ip != nil {
			start = ip
		}
	}
	if req.End != "" {
		if ip := net.ParseIP(req.End).To4(); ip != nil {
			end = ip
		}
	}

	pool := netalloc.NewPool(req.Name, subnet, start, end)
	if req.DefaultRouter != "" {
		if ip := net.ParseIP(req.DefaultRouter); ip != nil {
			_ = pool.NextExplicit(ip, "default_router")
			// alias_iface carries the gateway address on the host side of
			// the bridge so jailed clients actually have something to
			// route through at that address.
			if req.AliasIface != "" && s.Host != nil {
				ones, _ := subnet.Mask.Size()
				cidr := fmt.Sprintf("%s/%d", ip.String(), ones)
				if err := s.Host.IfaceCreateAlias(ctx, req.AliasIface, cidr); err != nil {
					return nil, fmt.Errorf("create_network: alias %s on %s: %w", cidr, req.AliasIface, err)
				}
			}
		}
	}

	s.mu.Lock()
	s.pools[req.Name] = pool
	s.mu.Unlock()
	return struct{}{}, nil
}

func (s *Server) ListNetworks(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	return names, nil
}

func (s *Server) CreateVolume(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req CreateVolumeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("create_volume: %w", err)
	}
	var kind volume.DriverKind
	switch req.Kind {
	case "zfs":
		kind = volume.ZfsDriver
		if err := requireRoot(cc.Credential); err != nil {
			return nil, fmt.Errorf("create_volume: %w", err)
		}
	case "", "directory":
		kind = volume.DirectoryDriver
	default:
		return nil, fmt.Errorf("create_volume: unknown kind %q", req.Kind)
	}

	driver, err := volume.ForKind(s.Host, kind)
	if err != nil {
		return nil, fmt.Errorf("create_volume: %w", err)
	}
	device := req.Device
	if kind == volume.ZfsDriver && device == "" {
		device = fmt.Sprintf("%s/volumes/%s", s.Config.ContainerDataset, req.Name)
	}
	v := volume.Volume{Name: req.Name, Kind: kind, Device: device}
	if err := driver.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create_volume: %w", err)
	}

	s.mu.Lock()
	s.volumes[req.Name] = v
	s.mu.Unlock()
	return struct{ Name string `json:"name"` }{Name: req.Name}, nil
}

func (s *Server) ListVolumes(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]volume.Volume, 0, len(s.volumes))
	for _, v := range s.volumes {
		out = append(out, v)
	}
	return out, nil
}

func (s *Server) AddContainerToNetgroup(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req AddContainerToNetgroupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("add_container_to_netgroup: %w", err)
	}
	s.mu.Lock()
	_, ok := findByName(s.sites, req.Name)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("add_container_to_netgroup: no such container %q", req.Name)
	}
	s.netgroups[req.Netgroup] = append(s.netgroups[req.Netgroup], req.Name)
	s.mu.Unlock()
	return struct{}{}, nil
}

// CommitNetgroup loads every current member's allocated address into a pf
// table named after the netgroup, so a single pf anchor rule written
// against that table covers the whole group - grounded on the journal's
// existing PFCreateAnchor/PFTableAddAddress effects, now exercised by a
// real control method instead of only by volume_test-style unit coverage.
func (s *Server) CommitNetgroup(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req CommitNetgroupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("commit_netgroup: %w", err)
	}
	s.mu.Lock()
	members := append([]string(nil), s.netgroups[req.Netgroup]...)
	s.mu.Unlock()

	anchor := "xcd/" + req.Netgroup
	if err := s.Host.PFCreateAnchor(ctx, anchor); err != nil {
		return nil, fmt.Errorf("commit_netgroup: %w", err)
	}
	table := req.Netgroup
	for _, name := range members {
		s.mu.Lock()
		st, ok := findByName(s.sites, name)
		s.mu.Unlock()
		if !ok || len(st.IPAlloc) == 0 {
			continue
		}
		if err := s.Host.PFTableAddAddress(ctx, anchor, table, st.IPAlloc[0].String()+"/32"); err != nil {
			return nil, fmt.Errorf("commit_netgroup: add %s: %w", name, err)
		}
	}
	return struct{}{}, nil
}

// RdrContainer installs a pf rdr-to rule forwarding extPort on extIface to
// a container's allocated address, wiring freebsd.Host.Redirect - the pf
// redirection primitive - through to the control socket.
func (s *Server) RdrContainer(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req RdrContainerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("rdr_container: %w", err)
	}
	s.mu.Lock()
	st, ok := findByName(s.sites, req.Name)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rdr_container: no such container %q", req.Name)
	}
	if len(st.IPAlloc) == 0 {
		return nil, fmt.Errorf("rdr_container: %s has no allocated address", req.Name)
	}
	anchor := "xcd/" + st.ID
	if err := s.Host.Redirect(ctx, anchor, req.ExtIface, req.Proto, req.ExtPort, st.IPAlloc[0].String(), req.DestPort); err != nil {
		return nil, fmt.Errorf("rdr_container: %w", err)
	}
	st.AddRedirect(site.Redirect{ExtIface: req.ExtIface, Proto: req.Proto, ExtPort: req.ExtPort, DestPort: req.DestPort})
	return struct{}{}, nil
}

func (s *Server) ListSiteRdr(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req ListSiteRdrRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("list_site_rdr: %w", err)
	}
	s.mu.Lock()
	st, ok := findByName(s.sites, req.Name)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("list_site_rdr: no such container %q", req.Name)
	}
	out := make([]SiteRedirect, 0, len(st.Redirects))
	for _, r := range st.Redirects {
		out = append(out, SiteRedirect{ExtIface: r.ExtIface, Proto: r.Proto, ExtPort: r.ExtPort, DestPort: r.DestPort})
	}
	return out, nil
}

// CreateChannel registers a named Unix-domain socket path a container's
// processes can dial to reach a host-side service without going through
// the daemon's main control socket (e.g. a build's stdin/stdout relay).
func (s *Server) CreateChannel(ctx context.Context, cc *control.ConnectionContext, raw []byte) (interface{}, error) {
	var req CreateChannelRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("create_channel: %w", err)
	}
	s.mu.Lock()
	s.channels[req.Name] = req.Path
	s.mu.Unlock()
	return struct{}{}, nil
}

func findByName(sites map[string]*site.Site, name string) (*site.Site, bool) {
	for _, st := range sites {
		if st.Name == name || st.ID == name {
			return st, true
		}
	}
	return nil, false
}

// BuildTable constructs the control.Table this server answers requests
// with, one entry per method name in the wire protocol.
func (s *Server) BuildTable() control.Table {
	return control.Table{
		"instantiate":               s.Instantiate,
		"show_container":            s.ShowContainer,
		"list_containers":           s.ListContainers,
		"kill_container":            s.KillContainer,
		"commit_container":          s.CommitContainer,
		"create_network":            s.CreateNetwork,
		"list_networks":             s.ListNetworks,
		"create_volume":             s.CreateVolume,
		"list_volumes":              s.ListVolumes,
		"add_container_to_netgroup": s.AddContainerToNetgroup,
		"commit_netgroup":           s.CommitNetgroup,
		"rdr_container":             s.RdrContainer,
		"list_site_rdr":             s.ListSiteRdr,
		"create_channel":            s.CreateChannel,
	}
}

// Serve listens on the daemon's main control socket (used for requests
// that are not scoped to a single running container, e.g. instantiate and
// list_containers; a per-container Reactor answers requests scoped to
// that container once it is Started).
func (s *Server) Serve(ctx context.Context) error {
	addr, err := net.ResolveUnixAddr("unix", s.Config.SocketPath)
	if err != nil {
		return fmt.Errorf("xcdserver: resolve socket path: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("xcdserver: listen: %w", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	table := s.BuildTable()
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xcdserver: accept: %w", err)
		}
		go func() {
			if err := control.Serve(ctx, conn, table); err != nil {
				slog.DebugContext(ctx, "xcdserver control connection closed", "err", err)
			}
		}()
	}
}
