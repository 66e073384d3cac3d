package topology

// ComponentType is the broad hardware class of a component.
type ComponentType string

const (
	ComponentNIC  ComponentType = "NIC"
	ComponentGPU  ComponentType = "GPU"
	ComponentNVMe ComponentType = "NVMe"
	ComponentFPGA ComponentType = "FPGA"
)

// ComponentModel names a concrete hardware model that can be attached to a
// node. The set matches what the testbed racks actually carry.
type ComponentModel string

const (
	ModelNICBasic     ComponentModel = "NIC_Basic"
	ModelNICConnectX5 ComponentModel = "NIC_ConnectX_5"
	ModelNICConnectX6 ComponentModel = "NIC_ConnectX_6"
	ModelNVMeP4510    ComponentModel = "NVME_P4510"
	ModelGPUTeslaT4   ComponentModel = "GPU_TeslaT4"
	ModelGPURTX6000   ComponentModel = "GPU_RTX6000"
	ModelGPUA30       ComponentModel = "GPU_A30"
	ModelGPUA40       ComponentModel = "GPU_A40"
	ModelFPGAU280     ComponentModel = "FPGA_Xilinx_U280"
)

// modelInfo describes the client-side capability entry for a component model.
// AllowedSites empty means the model is offered everywhere; the orchestrator
// still owns actual inventory and can reject a submit regardless.
type modelInfo struct {
	Type         ComponentType
	PortCount    int // network ports exposed, NICs only
	AllowedSites []string
}

var componentModels = map[ComponentModel]modelInfo{
	ModelNICBasic:     {Type: ComponentNIC, PortCount: 1},
	ModelNICConnectX5: {Type: ComponentNIC, PortCount: 2},
	ModelNICConnectX6: {Type: ComponentNIC, PortCount: 2},
	ModelNVMeP4510:    {Type: ComponentNVMe},
	ModelGPUTeslaT4:   {Type: ComponentGPU},
	ModelGPURTX6000:   {Type: ComponentGPU},
	ModelGPUA30:       {Type: ComponentGPU},
	ModelGPUA40:       {Type: ComponentGPU},
	ModelFPGAU280: {
		Type:         ComponentFPGA,
		AllowedSites: []string{"CLEM", "GATECH", "UKY", "RENC"},
	},
}

// Type returns the hardware class for the model, or "" when unknown.
func (m ComponentModel) Type() ComponentType {
	return componentModels[m].Type
}

// portCount returns how many network interfaces the model exposes.
func (m ComponentModel) portCount() int {
	return componentModels[m].PortCount
}

// supportedAt reports whether the model exists in the capability table and is
// offered at the given site.
func (m ComponentModel) supportedAt(site string) bool {
	info, ok := componentModels[m]
	if !ok {
		return false
	}
	if len(info.AllowedSites) == 0 {
		return true
	}
	for _, s := range info.AllowedSites {
		if s == site {
			return true
		}
	}
	return false
}

// Models returns all known component model names.
func Models() []ComponentModel {
	out := make([]ComponentModel, 0, len(componentModels))
	for m := range componentModels {
		out = append(out, m)
	}
	return out
}
