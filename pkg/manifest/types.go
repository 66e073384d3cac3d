// Package manifest turns declarative slice manifests into topology
// graphs. A manifest is the YAML a user feeds `weft submit -f`; Build
// replays it through the topology builder API so every rule the API
// enforces applies to manifests too.
package manifest

// Manifest is the top-level structure of a slice manifest file.
type Manifest struct {
	Name       string                 `yaml:"name"`
	Project    string                 `yaml:"project,omitempty"`
	LeaseDays  int                    `yaml:"lease_days,omitempty"`
	Defaults   Defaults               `yaml:"defaults,omitempty"`
	Nodes      map[string]NodeDef     `yaml:"nodes"`
	Networks   map[string]NetworkDef  `yaml:"networks,omitempty"`
	Facilities map[string]FacilityDef `yaml:"facility_ports,omitempty"`
}

// Defaults are applied to every node that leaves the field empty.
type Defaults struct {
	Site  string `yaml:"site,omitempty"`
	Image string `yaml:"image,omitempty"`
	Cores int    `yaml:"cores,omitempty"`
	RAM   int    `yaml:"ram,omitempty"`
	Disk  int    `yaml:"disk,omitempty"`
}

// NodeDef defines a single node.
type NodeDef struct {
	Site         string            `yaml:"site,omitempty"`
	Image        string            `yaml:"image,omitempty"`
	Host         string            `yaml:"host,omitempty"`
	Cores        int               `yaml:"cores,omitempty"`
	RAM          int               `yaml:"ram,omitempty"`
	Disk         int               `yaml:"disk,omitempty"`
	InstanceType string            `yaml:"instance_type,omitempty"`
	Components   map[string]string `yaml:"components,omitempty"` // name → model
	Routes       []RouteDef        `yaml:"routes,omitempty"`
	PostBoot     []TaskDef         `yaml:"post_boot,omitempty"`
}

// RouteDef is a static route installed by the post-boot configurator.
type RouteDef struct {
	Destination string `yaml:"destination"`
	Gateway     string `yaml:"gateway"`
}

// TaskDef is one post-boot task. Exactly one of Execute, Upload, or
// UploadDir must be set; To names the remote path for uploads.
type TaskDef struct {
	Execute   string `yaml:"execute,omitempty"`
	Upload    string `yaml:"upload,omitempty"`
	UploadDir string `yaml:"upload_dir,omitempty"`
	To        string `yaml:"to,omitempty"`
}

// NetworkDef defines a network service. Interface references are
// "node:component" (port 1) or "node:component:port"; a bare name
// references a facility port. An empty Type picks an L2 service from the
// members' site spread.
type NetworkDef struct {
	Type       string              `yaml:"type,omitempty"`
	Interfaces []string            `yaml:"interfaces"`
	Addressing map[string]IfaceDef `yaml:"addressing,omitempty"` // ref → overrides
	ERO        []string            `yaml:"ero,omitempty"`
}

// IfaceDef overrides addressing on one member interface.
type IfaceDef struct {
	IP   string `yaml:"ip,omitempty"` // CIDR; implies manual mode
	VLAN int    `yaml:"vlan,omitempty"`
	MTU  int    `yaml:"mtu,omitempty"`
	Mode string `yaml:"mode,omitempty"` // "auto" or "manual"
}

// FacilityDef defines a facility port stitching an external network in.
type FacilityDef struct {
	Site string `yaml:"site"`
	VLAN int    `yaml:"vlan"`
}
