package types

// Descriptor is one point-to-point send in a phase.
type Descriptor struct {
	SrcHost       int   `json:"src_node" yaml:"src_node"`
	SrcPort       int   `json:"src_port" yaml:"src_port"`
	DstHost       int   `json:"dst_node" yaml:"dst_node"`
	DstPort       int   `json:"dst_port" yaml:"dst_port"`
	Priority      int   `json:"priority" yaml:"priority"`
	MessageLength int64 `json:"msg_len" yaml:"msg_len"`
}

// NewDescriptor builds a priority-0 send on a single port, reversed when
// forward is false.
func NewDescriptor(src, dst, port int, msgLen int64, forward bool) Descriptor {
	d := Descriptor{
		SrcHost:       src,
		SrcPort:       port,
		DstHost:       dst,
		DstPort:       port,
		MessageLength: msgLen,
	}
	if !forward {
		return d.Reversed()
	}
	return d
}

// Reversed swaps source and destination, hosts and ports.
func (d Descriptor) Reversed() Descriptor {
	d.SrcHost, d.DstHost = d.DstHost, d.SrcHost
	d.SrcPort, d.DstPort = d.DstPort, d.SrcPort
	return d
}

// Phase is one time-step of concurrent sends.
type Phase []Descriptor

// CountDescriptors returns the number of sends across all phases.
func CountDescriptors(phases []Phase) int {
	n := 0
	for _, p := range phases {
		n += len(p)
	}
	return n
}
