package manifest

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weft-testbed/weft/pkg/topology"
)

// Load parses a manifest file and validates its structure.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses manifest YAML and validates its structure.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest YAML: %w", err)
	}
	if err := validate(&m); err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}
	return &m, nil
}

func validate(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("slice name is required")
	}
	if len(m.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	if m.LeaseDays < 0 {
		return fmt.Errorf("lease_days must be >= 0")
	}

	for name, node := range m.Nodes {
		for i, task := range node.PostBoot {
			set := 0
			for _, v := range []string{task.Execute, task.Upload, task.UploadDir} {
				if v != "" {
					set++
				}
			}
			if set != 1 {
				return fmt.Errorf("node %s: post_boot task %d must set exactly one of execute, upload, upload_dir", name, i+1)
			}
			if task.Execute == "" && task.To == "" {
				return fmt.Errorf("node %s: post_boot task %d needs a 'to' path", name, i+1)
			}
		}
		for i, rt := range node.Routes {
			if rt.Destination == "" || rt.Gateway == "" {
				return fmt.Errorf("node %s: route %d needs destination and gateway", name, i+1)
			}
		}
	}

	for name, fp := range m.Facilities {
		if fp.Site == "" {
			return fmt.Errorf("facility port %s: site is required", name)
		}
	}

	for name, net := range m.Networks {
		if len(net.Interfaces) == 0 {
			return fmt.Errorf("network %s: at least one interface is required", name)
		}
		members := make(map[string]bool, len(net.Interfaces))
		for _, ref := range net.Interfaces {
			if err := checkRef(m, name, ref); err != nil {
				return err
			}
			members[ref] = true
		}
		for ref := range net.Addressing {
			if !members[ref] {
				return fmt.Errorf("network %s: addressing for %q which is not a member", name, ref)
			}
		}
	}
	return nil
}

// checkRef verifies an interface reference points at defined entities.
func checkRef(m *Manifest, network, ref string) error {
	parts := strings.Split(ref, ":")
	switch len(parts) {
	case 1:
		if _, ok := m.Facilities[parts[0]]; !ok {
			return fmt.Errorf("network %s: %q references undefined facility port", network, ref)
		}
		return nil
	case 2, 3:
		node, ok := m.Nodes[parts[0]]
		if !ok {
			return fmt.Errorf("network %s: %q references undefined node %q", network, ref, parts[0])
		}
		if _, ok := node.Components[parts[1]]; !ok {
			return fmt.Errorf("network %s: %q references undefined component %q on node %q", network, ref, parts[1], parts[0])
		}
		if len(parts) == 3 {
			port, err := strconv.Atoi(parts[2])
			if err != nil || port < 1 {
				return fmt.Errorf("network %s: %q has invalid port %q", network, ref, parts[2])
			}
		}
		return nil
	default:
		return fmt.Errorf("network %s: %q must be 'node:component[:port]' or a facility port name", network, ref)
	}
}

// Build replays the manifest through the topology builder API and returns
// the resulting unsubmitted slice. Entities are created in name order so
// repeated builds of the same manifest produce identical graphs.
func Build(m *Manifest) (*topology.Slice, error) {
	s := topology.NewSlice(m.Name)
	if m.Project != "" {
		s.SetProject(m.Project)
	}
	if m.LeaseDays > 0 {
		s.SetLease(time.Now().Add(time.Duration(m.LeaseDays) * 24 * time.Hour))
	}

	for _, name := range sortedKeys(m.Nodes) {
		def := m.Nodes[name]
		cfg := topology.NodeConfig{
			Site:         pick(def.Site, m.Defaults.Site),
			Image:        pick(def.Image, m.Defaults.Image),
			Host:         def.Host,
			Cores:        def.Cores,
			RAM:          def.RAM,
			Disk:         def.Disk,
			InstanceType: def.InstanceType,
		}
		if cfg.InstanceType == "" {
			if cfg.Cores == 0 {
				cfg.Cores = m.Defaults.Cores
			}
			if cfg.RAM == 0 {
				cfg.RAM = m.Defaults.RAM
			}
			if cfg.Disk == 0 {
				cfg.Disk = m.Defaults.Disk
			}
		}

		node, err := s.AddNode(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", name, err)
		}
		for _, cname := range sortedKeys(def.Components) {
			if _, err := node.AddComponent(cname, topology.ComponentModel(def.Components[cname])); err != nil {
				return nil, fmt.Errorf("node %s: component %s: %w", name, cname, err)
			}
		}
		for _, rt := range def.Routes {
			if err := node.AddRoute(rt.Destination, rt.Gateway); err != nil {
				return nil, fmt.Errorf("node %s: %w", name, err)
			}
		}
		for _, task := range def.PostBoot {
			switch {
			case task.Execute != "":
				node.AddPostBootExecute(task.Execute)
			case task.Upload != "":
				node.AddPostBootUpload(task.Upload, task.To)
			case task.UploadDir != "":
				node.AddPostBootUploadDir(task.UploadDir, task.To)
			}
		}
	}

	for _, name := range sortedKeys(m.Facilities) {
		def := m.Facilities[name]
		if _, err := s.AddFacilityPort(name, def.Site, def.VLAN); err != nil {
			return nil, fmt.Errorf("facility port %s: %w", name, err)
		}
	}

	for _, name := range sortedKeys(m.Networks) {
		def := m.Networks[name]
		ifaces := make([]*topology.Interface, 0, len(def.Interfaces))
		for _, ref := range def.Interfaces {
			ifc, err := resolveRef(s, ref)
			if err != nil {
				return nil, fmt.Errorf("network %s: %w", name, err)
			}
			ifaces = append(ifaces, ifc)
		}

		var svc *topology.NetworkService
		var err error
		if def.Type == "" {
			svc, err = s.AddL2Network(name, ifaces)
		} else {
			svc, err = s.AddNetworkService(name, topology.ServiceType(def.Type), ifaces)
		}
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", name, err)
		}
		if len(def.ERO) > 0 {
			if err := svc.SetERO(def.ERO); err != nil {
				return nil, fmt.Errorf("network %s: %w", name, err)
			}
		}

		for _, ref := range def.Interfaces {
			over, ok := def.Addressing[ref]
			if !ok {
				continue
			}
			ifc, _ := resolveRef(s, ref)
			if err := applyOverrides(ifc, over); err != nil {
				return nil, fmt.Errorf("network %s: %s: %w", name, ref, err)
			}
		}
	}

	return s, nil
}

func applyOverrides(ifc *topology.Interface, over IfaceDef) error {
	if over.Mode != "" {
		if err := ifc.SetMode(topology.IPMode(over.Mode)); err != nil {
			return err
		}
	}
	if over.IP != "" {
		if err := ifc.SetIP(over.IP); err != nil {
			return err
		}
	}
	if over.VLAN != 0 {
		if err := ifc.SetVLAN(over.VLAN); err != nil {
			return err
		}
	}
	if over.MTU != 0 {
		if err := ifc.SetMTU(over.MTU); err != nil {
			return err
		}
	}
	return nil
}

// resolveRef returns the interface a reference names, after validation
// has checked the reference's shape.
func resolveRef(s *topology.Slice, ref string) (*topology.Interface, error) {
	parts := strings.Split(ref, ":")
	if len(parts) == 1 {
		fp, err := s.FacilityPort(parts[0])
		if err != nil {
			return nil, err
		}
		return fp.Interface(), nil
	}

	node, err := s.Node(parts[0])
	if err != nil {
		return nil, err
	}
	comp, err := node.Component(parts[1])
	if err != nil {
		return nil, err
	}
	port := 1
	if len(parts) == 3 {
		port, _ = strconv.Atoi(parts[2])
	}
	return comp.Interface(port)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
