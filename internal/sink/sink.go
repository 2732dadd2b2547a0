// Package sink persists the synthesized phases of one group as an rdma
// trace file.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Trace file markers.
const (
	FileHeader  = "stat rdma operate:"
	PhaseMarker = "phase:3000"
)

// Key addresses the trace of one group of one node.
type Key struct {
	NodeID string
	Group  int
}

// FileName is "rdma_operate.txt" for group 0 and "rdma_operate<k>.txt"
// for group k.
func (k Key) FileName() string {
	suffix := ""
	if k.Group > 0 {
		suffix = strconv.Itoa(k.Group)
	}
	return "rdma_operate" + suffix + ".txt"
}

// Path is the slash-separated location of the trace relative to the output
// root.
func (k Key) Path() string {
	return path.Join(k.NodeID, k.FileName())
}

// Sink accepts the ordered phases of one group. Write returns where the
// trace was stored.
type Sink interface {
	Write(ctx context.Context, key Key, phases []types.Phase) (string, error)
}

// Render writes phases in the rdma trace text format.
func Render(w io.Writer, phases []types.Phase) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, FileHeader); err != nil {
		return err
	}
	for _, phase := range phases {
		if _, err := fmt.Fprintln(bw, PhaseMarker); err != nil {
			return err
		}
		for _, d := range phase {
			if _, err := fmt.Fprintf(bw,
				"Type rdma_send src_node %d src_port %d dst_node %d dst_port %d priority %d msg_len %d\n",
				d.SrcHost, d.SrcPort, d.DstHost, d.DstPort, d.Priority, d.MessageLength); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
