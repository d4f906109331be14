// Package netalloc implements per-network IP address allocation, grounded
// on xcd::network_manager::NetworkManager and the underlying Netpool
// model: a subnet, a start/end address range within it, and a cursor
// recording the last address handed out. Snapshot and Restore export and
// reload that state; xcdserver keeps its pools in memory only, so the
// cursor is not kept across daemon restarts.
package netalloc

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// Pool tracks allocation state for one network's address range. It is
// safe for concurrent use; its State can be exported and reloaded via
// Snapshot/Restore, and no caller writes it to the store.
type Pool struct {
	mu        sync.Mutex
	Name      string
	Subnet    *net.IPNet
	StartAddr net.IP
	EndAddr   net.IP
	lastAddr  net.IP // nil until an address has been handed out
	used      map[string]string // address -> allocation token
}

func NewPool(name string, subnet *net.IPNet, start, end net.IP) *Pool {
	return &Pool{Name: name, Subnet: subnet, StartAddr: start, EndAddr: end, used: map[string]string{}}
}

func ip2int(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

func int2ip(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// isNetworkOrBroadcast reports whether addr is the network or broadcast
// address of subnet, the two addresses a Netpool must never hand out even
// when they fall inside [StartAddr, EndAddr].
func isNetworkOrBroadcast(addr net.IP, subnet *net.IPNet) bool {
	ip4 := addr.To4()
	mask := subnet.Mask
	network := ip4.Mask(mask)
	if ip4.Equal(network) {
		return true
	}
	broadcast := make(net.IP, len(network))
	for i := range network {
		broadcast[i] = network[i] | ^mask[i]
	}
	return ip4.Equal(broadcast)
}

// NextAddress returns the next free address in [StartAddr, EndAddr] minus
// the subnet's network and broadcast addresses, advancing the cursor from
// the last address handed out (or StartAddr on a fresh pool) and wrapping
// back to StartAddr once EndAddr is passed. It returns an error if every
// eligible address in the range is already allocated or reserved.
func (p *Pool) NextAddress(token string) (net.IP, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := ip2int(p.StartAddr)
	end := ip2int(p.EndAddr)
	if end < start {
		return nil, fmt.Errorf("netalloc: pool %s has an empty range", p.Name)
	}

	cursor := start
	if p.lastAddr != nil {
		cursor = ip2int(p.lastAddr) + 1
		if cursor > end {
			cursor = start
		}
	}

	span := end - start + 1
	for i := uint32(0); i < span; i++ {
		candidate := start + (cursor-start+i)%span
		addr := int2ip(candidate)
		if isNetworkOrBroadcast(addr, p.Subnet) {
			continue
		}
		key := addr.String()
		if _, taken := p.used[key]; !taken {
			p.used[key] = token
			p.lastAddr = addr
			return addr, nil
		}
	}
	return nil, fmt.Errorf("netalloc: pool %s is exhausted", p.Name)
}

// NextExplicit allocates a caller-specified address, failing if it falls
// outside the pool's subnet or is already in use.
func (p *Pool) NextExplicit(addr net.IP, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Subnet.Contains(addr) {
		return fmt.Errorf("netalloc: address %s is not in subnet %s", addr, p.Subnet)
	}
	key := addr.String()
	if existing, taken := p.used[key]; taken {
		return fmt.Errorf("netalloc: address %s already allocated to %q", addr, existing)
	}
	p.used[key] = token
	return nil
}

// Release frees every address currently allocated to token, the same
// release-by-token semantics as Netpool::release_addresses: a container's
// entire address set is released atomically by its allocation token
// rather than address-by-address.
func (p *Pool) Release(token string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for addr, tok := range p.used {
		if tok == token {
			delete(p.used, addr)
			n++
		}
	}
	return n
}

// State is the persisted form of a Pool's allocation cursor and in-use
// set, round-tripped through the store package's netpool/address_allocation
// tables.
type State struct {
	LastAddr string
	Used     map[string]string
}

func (p *Pool) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := make(map[string]string, len(p.used))
	for k, v := range p.used {
		used[k] = v
	}
	last := ""
	if p.lastAddr != nil {
		last = p.lastAddr.String()
	}
	return State{LastAddr: last, Used: used}
}

func (p *Pool) Restore(s State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.LastAddr != "" {
		ip := net.ParseIP(s.LastAddr)
		if ip == nil {
			return fmt.Errorf("netalloc: invalid persisted last address %q", s.LastAddr)
		}
		p.lastAddr = ip
	}
	p.used = map[string]string{}
	for k, v := range s.Used {
		p.used[k] = v
	}
	return nil
}
