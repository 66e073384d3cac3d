package topology

import (
	"fmt"
	"sort"
	"time"
)

// Document is the JSON shape a slice persists as. It carries desired,
// authoritative, and configured fields together so a new process can load
// it and resume polling or configuration without resubmitting.
type Document struct {
	Slice      SliceDoc               `json:"slice"`
	Nodes      map[string]NodeDoc     `json:"nodes"`
	Services   map[string]ServiceDoc  `json:"network_services"`
	Facilities map[string]FacilityDoc `json:"facility_ports,omitempty"`
}

// SliceDoc is the slice-level portion of a Document.
type SliceDoc struct {
	Name              string     `json:"name"`
	Project           string     `json:"project,omitempty"`
	SliceID           string     `json:"slice_id,omitempty"`
	State             SliceState `json:"state"`
	RemoteState       string     `json:"remote_state,omitempty"`
	LeaseStart        time.Time  `json:"lease_start,omitempty"`
	LeaseEnd          time.Time  `json:"lease_end,omitempty"`
	SSHPublicKey      string     `json:"ssh_public_key,omitempty"`
	SSHPrivateKeyPath string     `json:"ssh_private_key_path,omitempty"`
}

// NodeDoc is the per-node portion of a Document.
type NodeDoc struct {
	Site         string                  `json:"site"`
	Host         string                  `json:"host,omitempty"`
	Image        string                  `json:"image"`
	Cores        int                     `json:"cores,omitempty"`
	RAM          int                     `json:"ram,omitempty"`
	Disk         int                     `json:"disk,omitempty"`
	InstanceType string                  `json:"instance_type,omitempty"`
	Components   map[string]ComponentDoc `json:"components,omitempty"`
	Routes       []Route                 `json:"routes,omitempty"`
	PostBoot     []PostBootTask          `json:"post_boot_tasks,omitempty"`

	ReservationID string           `json:"reservation_id,omitempty"`
	State         ReservationState `json:"state"`
	ManagementIP  string           `json:"management_ip,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// ComponentDoc is the per-component portion of a Document.
type ComponentDoc struct {
	Model        ComponentModel          `json:"model"`
	PCIAddresses []string                `json:"pci_addresses,omitempty"`
	NUMANode     int                     `json:"numa_node"`
	Interfaces   map[string]InterfaceDoc `json:"interfaces,omitempty"`
}

// InterfaceDoc is the per-interface portion of a Document.
type InterfaceDoc struct {
	Mode      IPMode           `json:"mode"`
	VLAN      int              `json:"vlan,omitempty"`
	Bandwidth int              `json:"bandwidth,omitempty"`
	MTU       int              `json:"mtu,omitempty"`
	MAC       string           `json:"mac,omitempty"`
	State     ReservationState `json:"state,omitempty"`
	IPs       []string         `json:"ips,omitempty"`
	OSDevice  string           `json:"os_device,omitempty"`
}

// ServiceDoc is the per-service portion of a Document. Membership is the
// ordered list of interface names.
type ServiceDoc struct {
	Type       ServiceType `json:"type"`
	Interfaces []string    `json:"interfaces"`
	ERO        []string    `json:"ero,omitempty"`

	ReservationID string           `json:"reservation_id,omitempty"`
	State         ReservationState `json:"state"`
	Subnet        string           `json:"subnet,omitempty"`
	Gateway       string           `json:"gateway,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// FacilityDoc is the per-facility-port portion of a Document.
type FacilityDoc struct {
	Site          string           `json:"site"`
	VLAN          int              `json:"vlan"`
	ReservationID string           `json:"reservation_id,omitempty"`
	State         ReservationState `json:"state"`
}

// Document captures the whole graph as a persistable record.
func (s *Slice) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := &Document{
		Slice: SliceDoc{
			Name:              s.name,
			Project:           s.project,
			SliceID:           s.sliceID,
			State:             s.state,
			RemoteState:       s.remoteState,
			LeaseStart:        s.leaseStart,
			LeaseEnd:          s.leaseEnd,
			SSHPublicKey:      s.sshPublicKey,
			SSHPrivateKeyPath: s.sshPrivateKeyPath,
		},
		Nodes:    make(map[string]NodeDoc, len(s.nodes)),
		Services: make(map[string]ServiceDoc, len(s.services)),
	}

	for name, n := range s.nodes {
		nd := NodeDoc{
			Site:          n.site,
			Host:          n.host,
			Image:         n.image,
			Cores:         n.cores,
			RAM:           n.ram,
			Disk:          n.disk,
			InstanceType:  n.instanceType,
			Routes:        append([]Route(nil), n.routes...),
			PostBoot:      append([]PostBootTask(nil), n.tasks...),
			ReservationID: n.reservationID,
			State:         n.state,
			ManagementIP:  n.managementIP,
			Error:         n.lastError,
			Components:    make(map[string]ComponentDoc, len(n.components)),
		}
		for cname, c := range n.components {
			cd := ComponentDoc{
				Model:        c.model,
				PCIAddresses: append([]string(nil), c.pciAddresses...),
				NUMANode:     c.numaNode,
				Interfaces:   make(map[string]InterfaceDoc, len(c.interfaces)),
			}
			for _, ifc := range c.interfaces {
				cd.Interfaces[ifc.name] = InterfaceDoc{
					Mode:      ifc.mode,
					VLAN:      ifc.vlan,
					Bandwidth: ifc.bandwidth,
					MTU:       ifc.mtu,
					MAC:       ifc.mac,
					State:     ifc.state,
					IPs:       append([]string(nil), ifc.ips...),
					OSDevice:  ifc.osDevice,
				}
			}
			nd.Components[cname] = cd
		}
		doc.Nodes[name] = nd
	}

	for name, svc := range s.services {
		sd := ServiceDoc{
			Type:          svc.svcType,
			ERO:           append([]string(nil), svc.ero...),
			ReservationID: svc.reservationID,
			State:         svc.state,
			Subnet:        svc.subnet,
			Gateway:       svc.gateway,
			Error:         svc.lastError,
		}
		for _, ifc := range svc.interfaces {
			sd.Interfaces = append(sd.Interfaces, ifc.name)
		}
		doc.Services[name] = sd
	}

	if len(s.facilities) > 0 {
		doc.Facilities = make(map[string]FacilityDoc, len(s.facilities))
		for name, fp := range s.facilities {
			doc.Facilities[name] = FacilityDoc{
				Site:          fp.site,
				VLAN:          fp.iface.vlan,
				ReservationID: fp.reservationID,
				State:         fp.state,
			}
		}
	}

	return doc
}

// FromDocument rebuilds a slice graph from a persisted record.
func FromDocument(doc *Document) (*Slice, error) {
	if doc.Slice.Name == "" {
		return nil, fmt.Errorf("document has no slice name")
	}

	s := NewSlice(doc.Slice.Name)
	s.project = doc.Slice.Project
	s.sliceID = doc.Slice.SliceID
	s.state = doc.Slice.State
	if s.state == "" {
		s.state = SliceUnsubmitted
	}
	s.remoteState = doc.Slice.RemoteState
	s.leaseStart = doc.Slice.LeaseStart
	s.leaseEnd = doc.Slice.LeaseEnd
	s.sshPublicKey = doc.Slice.SSHPublicKey
	s.sshPrivateKeyPath = doc.Slice.SSHPrivateKeyPath

	for name, nd := range doc.Nodes {
		n := &Node{
			slice:         s,
			name:          name,
			site:          nd.Site,
			host:          nd.Host,
			image:         nd.Image,
			cores:         nd.Cores,
			ram:           nd.RAM,
			disk:          nd.Disk,
			instanceType:  nd.InstanceType,
			routes:        append([]Route(nil), nd.Routes...),
			tasks:         append([]PostBootTask(nil), nd.PostBoot...),
			reservationID: nd.ReservationID,
			state:         nd.State,
			managementIP:  nd.ManagementIP,
			lastError:     nd.Error,
			components:    make(map[string]*Component, len(nd.Components)),
		}
		if n.state == "" {
			n.state = StateUnsubmitted
		}
		for cname, cd := range nd.Components {
			c := &Component{
				node:         n,
				name:         cname,
				model:        cd.Model,
				pciAddresses: append([]string(nil), cd.PCIAddresses...),
				numaNode:     cd.NUMANode,
			}
			// Interface order follows the port number embedded in the name.
			inames := make([]string, 0, len(cd.Interfaces))
			for iname := range cd.Interfaces {
				inames = append(inames, iname)
			}
			sort.Strings(inames)
			for _, iname := range inames {
				id := cd.Interfaces[iname]
				ifc := &Interface{
					slice:     s,
					node:      n,
					component: c,
					name:      iname,
					mode:      id.Mode,
					vlan:      id.VLAN,
					bandwidth: id.Bandwidth,
					mtu:       id.MTU,
					mac:       id.MAC,
					state:     id.State,
					ips:       append([]string(nil), id.IPs...),
					osDevice:  id.OSDevice,
				}
				if ifc.mode == "" {
					ifc.mode = IPModeAuto
				}
				if ifc.state == "" {
					ifc.state = StateUnsubmitted
				}
				c.interfaces = append(c.interfaces, ifc)
			}
			n.components[cname] = c
		}
		s.nodes[name] = n
	}

	for name, fd := range doc.Facilities {
		fp := &FacilityPort{
			slice:         s,
			name:          name,
			site:          fd.Site,
			reservationID: fd.ReservationID,
			state:         fd.State,
		}
		if fp.state == "" {
			fp.state = StateUnsubmitted
		}
		fp.iface = &Interface{
			slice:    s,
			facility: fp,
			name:     fmt.Sprintf("%s-p1", name),
			mode:     IPModeManual,
			vlan:     fd.VLAN,
			state:    fp.state,
		}
		s.facilities[name] = fp
	}

	byName := make(map[string]*Interface)
	for _, ifc := range s.interfacesLocked() {
		byName[ifc.name] = ifc
	}

	for name, sd := range doc.Services {
		svc := &NetworkService{
			slice:         s,
			name:          name,
			svcType:       sd.Type,
			ero:           append([]string(nil), sd.ERO...),
			reservationID: sd.ReservationID,
			state:         sd.State,
			subnet:        sd.Subnet,
			gateway:       sd.Gateway,
			lastError:     sd.Error,
		}
		if svc.state == "" {
			svc.state = StateUnsubmitted
		}
		for _, iname := range sd.Interfaces {
			ifc, ok := byName[iname]
			if !ok {
				return nil, fmt.Errorf("service '%s' references unknown interface '%s'", name, iname)
			}
			if ifc.service != nil {
				return nil, fmt.Errorf("interface '%s' referenced by two services", iname)
			}
			ifc.service = svc
			svc.interfaces = append(svc.interfaces, ifc)
		}
		s.services[name] = svc
	}

	return s, nil
}
