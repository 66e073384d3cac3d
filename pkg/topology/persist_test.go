package topology

import (
	"encoding/json"
	"testing"
)

func TestDocumentRoundTrip(t *testing.T) {
	s := twoNodePTP(t)
	n1, _ := s.Node("node1")
	n1.AddPostBootExecute("hostname")
	if err := n1.AddRoute("10.132.0.0/24", "10.131.1.1"); err != nil {
		t.Fatalf("AddRoute() error = %v", err)
	}
	if _, err := s.AddFacilityPort("chameleon", "STAR", 3303); err != nil {
		t.Fatalf("AddFacilityPort() error = %v", err)
	}
	s.SetSSHKeys("ssh-ed25519 AAAA... user@host", "/home/user/.weft/slice_key")
	s.SetProject("proj-1234")
	s.MarkSubmitted("slice-guid")
	s.Merge(activeSnapshot())

	doc := s.Document()

	// The document must survive JSON, since that is how it is stored.
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	restored, err := FromDocument(&decoded)
	if err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}

	if restored.Name() != "test" || restored.ID() != "slice-guid" {
		t.Errorf("identity lost: name=%q id=%q", restored.Name(), restored.ID())
	}
	if restored.State() != SliceStable {
		t.Errorf("State() = %v, want %v", restored.State(), SliceStable)
	}
	if restored.Project() != "proj-1234" {
		t.Errorf("Project() = %q", restored.Project())
	}
	if restored.SSHPrivateKeyPath() != "/home/user/.weft/slice_key" {
		t.Errorf("SSHPrivateKeyPath() = %q", restored.SSHPrivateKeyPath())
	}

	rn1, err := restored.Node("node1")
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	if rn1.ManagementIP() != "198.51.100.10" {
		t.Errorf("ManagementIP = %q", rn1.ManagementIP())
	}
	if rn1.State() != StateActive {
		t.Errorf("node state = %v", rn1.State())
	}
	if tasks := rn1.PostBootTasks(); len(tasks) != 1 || tasks[0].Command != "hostname" {
		t.Errorf("post-boot tasks = %v", tasks)
	}
	if routes := rn1.Routes(); len(routes) != 1 || routes[0].Destination != "10.132.0.0/24" {
		t.Errorf("routes = %v", routes)
	}

	rsvc, err := restored.Service("net1")
	if err != nil {
		t.Fatalf("Service() error = %v", err)
	}
	if rsvc.Type() != ServiceL2PTP {
		t.Errorf("service type = %v", rsvc.Type())
	}
	members := rsvc.Interfaces()
	if len(members) != 2 {
		t.Fatalf("member count = %d, want 2", len(members))
	}
	for _, ifc := range members {
		if ifc.Service() != rsvc {
			t.Errorf("interface %s lost its service back-reference", ifc.Name())
		}
	}

	ifc, err := rn1.Interface("node1-nic1-p1")
	if err != nil {
		t.Fatalf("Interface() error = %v", err)
	}
	if ifc.MAC() != "0a:0b:0c:0d:0e:01" {
		t.Errorf("MAC = %q", ifc.MAC())
	}

	rfp, err := restored.FacilityPort("chameleon")
	if err != nil {
		t.Fatalf("FacilityPort() error = %v", err)
	}
	if rfp.Interface().VLAN() != 3303 {
		t.Errorf("facility VLAN = %d", rfp.Interface().VLAN())
	}

	// A restored slice keeps evolving: further merges must work.
	state := restored.Merge(activeSnapshot())
	if state != SliceStable {
		t.Errorf("Merge() on restored slice = %v, want %v", state, SliceStable)
	}
}

func TestFromDocumentRejectsCorrupt(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{
			name: "missing name",
			doc:  Document{},
		},
		{
			name: "service references unknown interface",
			doc: Document{
				Slice:    SliceDoc{Name: "test"},
				Nodes:    map[string]NodeDoc{},
				Services: map[string]ServiceDoc{"net1": {Type: ServiceL2PTP, Interfaces: []string{"nope"}}},
			},
		},
		{
			name: "interface claimed twice",
			doc: Document{
				Slice: SliceDoc{Name: "test"},
				Nodes: map[string]NodeDoc{
					"node1": {
						Site: "STAR", Image: DefaultImage, Cores: 2, RAM: 8, Disk: 10,
						Components: map[string]ComponentDoc{
							"nic1": {
								Model: ModelNICBasic,
								Interfaces: map[string]InterfaceDoc{
									"node1-nic1-p1": {Mode: IPModeAuto},
								},
							},
						},
					},
				},
				Services: map[string]ServiceDoc{
					"a": {Type: ServiceL3VPN, Interfaces: []string{"node1-nic1-p1"}},
					"b": {Type: ServiceL3VPN, Interfaces: []string{"node1-nic1-p1"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromDocument(&tt.doc); err == nil {
				t.Error("FromDocument() accepted a corrupt document")
			}
		})
	}
}

func TestStableRequiresEveryEntity(t *testing.T) {
	s := twoNodePTP(t)
	s.MarkSubmitted("slice-guid")

	snap := activeSnapshot()
	delete(snap.Services, "net1")

	// Nodes are all active but the service has never been reported.
	if state := s.Merge(snap); state != SlicePending {
		t.Errorf("Merge() = %v, want %v", state, SlicePending)
	}
}
