package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scttfrdmn/collective-traffic-gen/internal/orchestrator"
	"github.com/scttfrdmn/collective-traffic-gen/internal/sink"
	"github.com/scttfrdmn/collective-traffic-gen/internal/topology"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

var (
	treeIterations int
	treeTraffic    bool
)

var (
	kindColors = map[types.Kind]*color.Color{
		types.KindTP: color.New(color.FgCyan, color.Bold),
		types.KindPP: color.New(color.FgGreen, color.Bold),
		types.KindDP: color.New(color.FgYellow, color.Bold),
		types.KindEP: color.New(color.FgMagenta, color.Bold),
	}
	headerColor = color.New(color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	skipColor   = color.New(color.FgRed)
)

var treeCmd = &cobra.Command{
	Use:   "tree <grammar>",
	Short: "Print the communication trees of a grammar",
	Long: `Build the communication tree of each iteration and print it, without
writing any trace files.

Examples:
  # Print every iteration
  collective-traffic-gen tree topology.txt

  # Print the first two iterations with their group and port assignment
  collective-traffic-gen tree topology.txt --iterations 2 --traffic`,
	Args: cobra.ExactArgs(1),
	Run:  runTreeCommand,
}

func init() {
	treeCmd.Flags().IntVar(&treeIterations, "iterations", 0, "iterations to print (default: all from the header)")
	treeCmd.Flags().BoolVar(&treeTraffic, "traffic", false, "also show the groups and ports each node would generate")

	rootCmd.AddCommand(treeCmd)
}

func runTreeCommand(cmd *cobra.Command, args []string) {
	grammar, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error: failed to read grammar: %v\n", err)
		os.Exit(1)
	}

	header, err := topology.ReadHeader(grammar)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	iterations := header.IterationCount
	if treeIterations > 0 {
		iterations = min(treeIterations, header.IterationCount)
	}

	fmt.Printf("Model: %s  Devices: %d  Iterations: %d\n", header.Model, header.DeviceCount, header.IterationCount)

	gc := topology.NewContext(viper.GetUint64("seed"))
	orch := orchestrator.New(sink.NewMemorySink(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, orchestrator.DefaultOptions())

	var carried *topology.CarriedNode
	for i := range iterations {
		tree, next, err := topology.Build(gc, grammar, i, carried)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		var nodes map[string]nodeTrafficSummary
		if treeTraffic {
			rep, err := orch.Generate(context.Background(), gc, tree)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			nodes = nodeTraffic(rep)
		}

		fmt.Println()
		headerColor.Printf("Iteration %d\n", i)
		printTree(os.Stdout, tree, nodes)
		carried = next
	}
}

type nodeTrafficSummary struct {
	orchestrator.NodeReport
	firstPort int
	lastPort  int
}

// nodeTraffic indexes the node reports of rep by node id, with the port
// range of the traces each node wrote.
func nodeTraffic(rep *orchestrator.IterationReport) map[string]nodeTrafficSummary {
	out := make(map[string]nodeTrafficSummary, len(rep.Nodes))
	for _, n := range rep.Nodes {
		out[n.NodeID] = nodeTrafficSummary{NodeReport: n}
	}
	for _, t := range rep.Traces {
		s := out[t.NodeID]
		if s.firstPort == 0 || t.Port < s.firstPort {
			s.firstPort = t.Port
		}
		s.lastPort = max(s.lastPort, t.Port)
		out[t.NodeID] = s
	}
	return out
}

func printTree(w io.Writer, tree *topology.Tree, traffic map[string]nodeTrafficSummary) {
	root := tree.Root()
	fmt.Fprintln(w, root.ID)

	seen := make(map[int]bool)
	var walk func(children []int, prefix string)
	walk = func(children []int, prefix string) {
		for i, c := range children {
			last := i == len(children)-1
			branch, indent := "├── ", "│   "
			if last {
				branch, indent = "└── ", "    "
			}

			node := tree.Node(c)
			fmt.Fprintf(w, "%s%s%s\n", prefix, branch, describeNode(node, traffic))
			if seen[c] {
				continue
			}
			seen[c] = true
			walk(node.Children, prefix+indent)
		}
	}
	walk(root.Children, "")
}

func describeNode(n *topology.Node, traffic map[string]nodeTrafficSummary) string {
	var b strings.Builder

	c, ok := kindColors[n.Kind]
	if !ok {
		c = headerColor
	}
	b.WriteString(c.Sprint(n.ID))

	details := []string{
		fmt.Sprintf("layer=%d", n.Layer),
		fmt.Sprintf("host_num=%d", n.Args.HostCount),
	}
	switch n.Kind {
	case types.KindTP, types.KindEP:
		details = append(details, fmt.Sprintf("num_nodes=%d", n.Args.GroupNodeCount))
	default:
		details = append(details, fmt.Sprintf("dp=%d", n.Args.Parallelism))
	}
	if len(n.SimulatedHops) > 0 {
		details = append(details, "hops="+strings.Join(n.SimulatedHops, ""))
	}
	if n.Carried {
		details = append(details, "carried")
	}
	if len(n.Parents) > 1 {
		details = append(details, fmt.Sprintf("parents=%d", len(n.Parents)))
	}
	b.WriteString(" ")
	b.WriteString(dimColor.Sprint(strings.Join(details, " ")))

	if nr, ok := traffic[n.ID]; ok {
		b.WriteString(" ")
		if nr.SkipReason != "" {
			b.WriteString(skipColor.Sprintf("skipped (%s)", nr.SkipReason))
		} else {
			fmt.Fprintf(&b, "%s groups=%d", nr.Mode, nr.Groups)
			if nr.Groups > 0 {
				fmt.Fprintf(&b, " ports=%d-%d", nr.firstPort, nr.lastPort)
			}
		}
	}
	return b.String()
}
