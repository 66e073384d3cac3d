package postboot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weft-testbed/weft/pkg/bastion"
	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// osLink is one entry of `ip -j addr list`.
type osLink struct {
	Name  string   `json:"ifname"`
	Flags []string `json:"flags"`
	MTU   int      `json:"mtu"`
	MAC   string   `json:"address"`
	Addrs []osAddr `json:"addr_info"`
}

type osAddr struct {
	Family    string `json:"family"` // "inet" or "inet6"
	Local     string `json:"local"`
	PrefixLen int    `json:"prefixlen"`
	Scope     string `json:"scope"` // "global", "link", "host"
}

// osRoute is one entry of `ip -j route list`.
type osRoute struct {
	Dst     string `json:"dst"` // "default" or CIDR
	Gateway string `json:"gateway"`
	Dev     string `json:"dev"`
}

func (l *osLink) isUp() bool {
	for _, f := range l.Flags {
		if f == "UP" {
			return true
		}
	}
	return false
}

// globalAddrs returns the link's addresses in CIDR notation, skipping
// link-local and host scopes the kernel manages on its own.
func (l *osLink) globalAddrs() []string {
	var out []string
	for _, a := range l.Addrs {
		if a.Scope != "global" {
			continue
		}
		out = append(out, fmt.Sprintf("%s/%d", a.Local, a.PrefixLen))
	}
	return out
}

// nodeFacts is one node's live network state, read once per configuration
// run. Mutations made during the run are folded back in so later steps see
// them without a second round trip.
type nodeFacts struct {
	hostname string
	links    map[string]*osLink // by ifname
	byMAC    map[string]*osLink // physical devices by lowercased MAC
	routes   []osRoute
}

// gatherFacts reads the node's hostname, addresses, and routes. These are
// the only probes the configurator makes; everything else is decided from
// this snapshot.
func (c *Configurator) gatherFacts(ctx context.Context, node *topology.Node) (*nodeFacts, error) {
	hostname, err := c.capture(ctx, node, "hostname")
	if err != nil {
		return nil, err
	}

	addrJSON, err := c.capture(ctx, node, "ip -j addr list")
	if err != nil {
		return nil, err
	}
	var links []*osLink
	if err := json.Unmarshal([]byte(addrJSON), &links); err != nil {
		return nil, fmt.Errorf("parse ip addr output: %w", err)
	}

	routeJSON, err := c.capture(ctx, node, "ip -j route list")
	if err != nil {
		return nil, err
	}
	var routes []osRoute
	if err := json.Unmarshal([]byte(routeJSON), &routes); err != nil {
		return nil, fmt.Errorf("parse ip route output: %w", err)
	}

	facts := &nodeFacts{
		hostname: strings.TrimSpace(hostname),
		links:    make(map[string]*osLink, len(links)),
		byMAC:    make(map[string]*osLink, len(links)),
		routes:   routes,
	}
	for _, l := range links {
		facts.links[l.Name] = l
		if l.MAC != "" && !strings.Contains(l.Name, ".") {
			facts.byMAC[strings.ToLower(l.MAC)] = l
		}
	}
	return facts, nil
}

// deviceByMAC returns the physical device carrying the given hardware
// address, nil when the guest has not enumerated it.
func (f *nodeFacts) deviceByMAC(mac string) *osLink {
	return f.byMAC[strings.ToLower(mac)]
}

func (f *nodeFacts) link(name string) *osLink {
	return f.links[name]
}

// hasAddr reports whether the named device already carries the address.
func (f *nodeFacts) hasAddr(dev, cidr string) bool {
	l := f.links[dev]
	if l == nil {
		return false
	}
	for _, have := range l.globalAddrs() {
		if have == cidr {
			return true
		}
	}
	return false
}

// hasRoute reports whether a route to dst via gateway is already present.
func (f *nodeFacts) hasRoute(dst, gateway string) bool {
	for _, r := range f.routes {
		if r.Dst == dst && r.Gateway == gateway {
			return true
		}
	}
	return false
}

// recordLink folds a device created during this run into the fact set.
func (f *nodeFacts) recordLink(name string, mtu int, up bool) {
	l := f.links[name]
	if l == nil {
		l = &osLink{Name: name}
		f.links[name] = l
	}
	if mtu != 0 {
		l.MTU = mtu
	}
	if up && !l.isUp() {
		l.Flags = append(l.Flags, "UP")
	}
}

func (f *nodeFacts) recordAddr(dev, cidr string) {
	l := f.links[dev]
	if l == nil {
		l = &osLink{Name: dev}
		f.links[dev] = l
	}
	addr, plen := util.SplitIPMask(cidr)
	l.Addrs = append(l.Addrs, osAddr{Local: addr, PrefixLen: plen, Scope: "global"})
}

func (f *nodeFacts) recordRoute(dst, gateway string) {
	f.routes = append(f.routes, osRoute{Dst: dst, Gateway: gateway})
}

// capture runs a read-only command and returns its stdout. Non-zero exit
// is an error here: the discovery commands are expected to succeed on any
// healthy image.
func (c *Configurator) capture(ctx context.Context, node *topology.Node, command string) (string, error) {
	res, err := c.Runner.Execute(ctx, node, command, bastion.ExecOptions{})
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("%q exited %d: %s", command, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}
