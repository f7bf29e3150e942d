package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <pipeline.yaml>",
		Short: "Print a human-readable summary of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.ParseFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "dot":
				s, err := renderDOT(p)
				if err != nil {
					return err
				}
				fmt.Fprint(out, s)
			case "text", "":
				fmt.Fprint(out, renderText(p))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// paramSummary renders params as sorted key=value pairs.
func paramSummary(params map[string]any) string {
	parts := make([]string, 0, len(params))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		parts = append(parts, k+"="+truncate(fmt.Sprint(params[k]), 60))
	}
	return strings.Join(parts, " ")
}

// renderText produces the human-readable text summary.
func renderText(p *pipeline.Pipeline) string {
	var sb strings.Builder

	name := p.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&sb, "Pipeline: %s  (%d steps)\n\n", name, p.Len())

	maxNodeLen := 4
	for _, s := range p.Steps {
		maxNodeLen = max(maxNodeLen, len(s.Node))
	}
	for i, s := range p.Steps {
		fmt.Fprintf(&sb, "  %3d  %-*s  %s\n", i, maxNodeLen, s.Node, paramSummary(s.Params))
	}
	return sb.String()
}

// renderDOT draws the steps as a left-to-right chain of boxes.
func renderDOT(p *pipeline.Pipeline) (string, error) {
	g := gographviz.NewGraph()
	name := p.Name
	if name == "" {
		name = "pipeline"
	}
	if err := g.SetName(strconv.Quote(name)); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if err := g.AddAttr(g.Name, "rankdir", "LR"); err != nil {
		return "", err
	}

	prev := ""
	for i, s := range p.Steps {
		id := fmt.Sprintf("step%d", i)
		label := s.Node
		if summary := paramSummary(s.Params); summary != "" {
			label += "\n" + summary
		}
		attrs := map[string]string{
			"shape": "box",
			"label": strconv.Quote(label),
		}
		if err := g.AddNode(g.Name, id, attrs); err != nil {
			return "", fmt.Errorf("step %d: %w", i, err)
		}
		if prev != "" {
			if err := g.AddEdge(prev, id, true, nil); err != nil {
				return "", fmt.Errorf("step %d: %w", i, err)
			}
		}
		prev = id
	}
	return g.String(), nil
}
