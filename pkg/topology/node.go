package topology

import (
	"fmt"
	"sort"

	"github.com/weft-testbed/weft/pkg/util"
)

// Node is a virtual machine reservation within a slice.
type Node struct {
	slice *Slice

	// Desired fields, written by builders before submit.
	name         string
	site         string
	host         string
	image        string
	cores        int
	ram          int
	disk         int
	instanceType string
	components   map[string]*Component
	routes       []Route
	tasks        []PostBootTask

	// Authoritative fields, written by snapshot merge.
	reservationID string
	state         ReservationState
	managementIP  string
	lastError     string
}

// Route is a static route the configurator installs on the node.
type Route struct {
	Destination string `json:"destination"` // CIDR
	Gateway     string `json:"gateway"`     // next-hop IP
}

// TaskKind distinguishes post-boot task types.
type TaskKind string

const (
	TaskExecute   TaskKind = "execute"
	TaskUpload    TaskKind = "upload"
	TaskUploadDir TaskKind = "upload-dir"
)

// PostBootTask is a user-supplied action run on the node after the slice
// stabilizes, in the order added.
type PostBootTask struct {
	Kind       TaskKind `json:"kind"`
	Command    string   `json:"command,omitempty"`
	LocalPath  string   `json:"local_path,omitempty"`
	RemotePath string   `json:"remote_path,omitempty"`
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Site returns the site the node is placed at.
func (n *Node) Site() string { return n.site }

// Host returns the pinned worker host, empty when the orchestrator chooses.
func (n *Node) Host() string { return n.host }

// Image returns the boot image name.
func (n *Node) Image() string { return n.image }

// Capacity returns the requested cores, RAM (GB), and disk (GB). All zero
// when the node was sized with an instance type instead.
func (n *Node) Capacity() (cores, ram, disk int) {
	return n.cores, n.ram, n.disk
}

// InstanceType returns the named instance type, empty when a capacity spec
// was given.
func (n *Node) InstanceType() string { return n.instanceType }

// Slice returns the owning slice.
func (n *Node) Slice() *Slice { return n.slice }

// SSHUsername returns the login account for the node's image.
func (n *Node) SSHUsername() string { return imageUsername(n.image) }

// ReservationID returns the orchestrator-assigned reservation ID.
func (n *Node) ReservationID() string {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	return n.reservationID
}

// State returns the node's reservation state.
func (n *Node) State() ReservationState {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	return n.state
}

// ManagementIP returns the address the node is reachable at through the
// bastion, empty until the reservation is active.
func (n *Node) ManagementIP() string {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	return n.managementIP
}

// LastError returns the orchestrator-reported error for the reservation.
func (n *Node) LastError() string {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	return n.lastError
}

// Component returns a component by name.
func (n *Node) Component(name string) (*Component, error) {
	return getEntity(&n.slice.mu, n.components, "component", name)
}

// Components returns the node's components sorted by name.
func (n *Node) Components() []*Component {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	out := make([]*Component, 0, len(n.components))
	for _, c := range n.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Interfaces returns all interfaces across the node's NICs sorted by name.
func (n *Node) Interfaces() []*Interface {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	var out []*Interface
	for _, c := range n.components {
		out = append(out, c.interfaces...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Interface returns a node interface by its full name.
func (n *Node) Interface(name string) (*Interface, error) {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	for _, c := range n.components {
		for _, ifc := range c.interfaces {
			if ifc.name == name {
				return ifc, nil
			}
		}
	}
	return nil, fmt.Errorf("interface '%s' not found on node '%s'", name, n.name)
}

// AddComponent attaches a hardware component to the node. The model must
// exist in the capability table and be offered at the node's site.
func (n *Node) AddComponent(name string, model ComponentModel) (*Component, error) {
	n.slice.mu.Lock()
	defer n.slice.mu.Unlock()

	if n.slice.state != SliceUnsubmitted {
		return nil, &InvalidStateError{Operation: "add component", Entity: name, State: string(n.slice.state)}
	}
	if err := validateEntityName("component", name); err != nil {
		return nil, err
	}
	if _, exists := n.components[name]; exists {
		return nil, &DuplicateNameError{Kind: "component", Name: name}
	}
	if !model.supportedAt(n.site) {
		return nil, &UnsupportedModelError{Model: string(model), Site: n.site}
	}

	c := &Component{
		node:     n,
		name:     name,
		model:    model,
		numaNode: -1,
	}
	for p := 1; p <= model.portCount(); p++ {
		c.interfaces = append(c.interfaces, &Interface{
			slice:     n.slice,
			node:      n,
			component: c,
			name:      fmt.Sprintf("%s-%s-p%d", n.name, name, p),
			mode:      IPModeAuto,
			state:     StateUnsubmitted,
		})
	}
	n.components[name] = c
	return c, nil
}

// AddRoute records a static route for the configurator to install.
func (n *Node) AddRoute(destination, gateway string) error {
	n.slice.mu.Lock()
	defer n.slice.mu.Unlock()

	if !util.IsValidCIDR(destination) {
		return &InvalidSpecError{Entity: n.name, Reason: fmt.Sprintf("route destination '%s' is not a CIDR", destination)}
	}
	if !util.IsValidIP(gateway) {
		return &InvalidSpecError{Entity: n.name, Reason: fmt.Sprintf("route gateway '%s' is not an IP address", gateway)}
	}
	n.routes = append(n.routes, Route{Destination: destination, Gateway: gateway})
	return nil
}

// Routes returns the node's static routes in the order added.
func (n *Node) Routes() []Route {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	out := make([]Route, len(n.routes))
	copy(out, n.routes)
	return out
}

// AddPostBootExecute queues a command to run on the node after the slice
// stabilizes.
func (n *Node) AddPostBootExecute(command string) {
	n.slice.mu.Lock()
	defer n.slice.mu.Unlock()
	n.tasks = append(n.tasks, PostBootTask{Kind: TaskExecute, Command: command})
}

// AddPostBootUpload queues a file upload to run after the slice stabilizes.
func (n *Node) AddPostBootUpload(localPath, remotePath string) {
	n.slice.mu.Lock()
	defer n.slice.mu.Unlock()
	n.tasks = append(n.tasks, PostBootTask{Kind: TaskUpload, LocalPath: localPath, RemotePath: remotePath})
}

// AddPostBootUploadDir queues a directory upload to run after the slice
// stabilizes.
func (n *Node) AddPostBootUploadDir(localPath, remotePath string) {
	n.slice.mu.Lock()
	defer n.slice.mu.Unlock()
	n.tasks = append(n.tasks, PostBootTask{Kind: TaskUploadDir, LocalPath: localPath, RemotePath: remotePath})
}

// PostBootTasks returns the queued post-boot tasks in order.
func (n *Node) PostBootTasks() []PostBootTask {
	n.slice.mu.RLock()
	defer n.slice.mu.RUnlock()
	out := make([]PostBootTask, len(n.tasks))
	copy(out, n.tasks)
	return out
}
