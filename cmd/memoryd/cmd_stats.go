package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"memoryd/internal/registry"
	"memoryd/internal/stats"
)

var statsProjects bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the memory store",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

type statsReport struct {
	Global   stats.Global    `json:"global"`
	Projects []stats.Project `json:"projects,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	agg := stats.New(st, registry.Open(cfg.Data.Dir))
	var report statsReport
	if report.Global, err = agg.Global(cmd.Context()); err != nil {
		return err
	}
	if statsProjects {
		if report.Projects, err = agg.Projects(cmd.Context()); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, report)
	}

	g := report.Global
	fmt.Fprintln(out, titleStyle.Render("Memory store"))
	fmt.Fprintln(out, row("memories", fmt.Sprint(g.Total)))
	fmt.Fprintln(out, row("projects", fmt.Sprint(g.Projects)))
	fmt.Fprintln(out, row("users", fmt.Sprint(g.Users)))
	fmt.Fprintln(out, row("project scope", fmt.Sprint(g.ByScope[stats.ScopeProject])))
	fmt.Fprintln(out, row("user scope", fmt.Sprint(g.ByScope[stats.ScopeUser])))

	types := make([]string, 0, len(g.ByType))
	for t := range g.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintln(out, row("  "+t, fmt.Sprint(g.ByType[t])))
	}

	if len(report.Projects) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("Projects"))
		for _, p := range report.Projects {
			label := p.UserID
			if p.Name != nil {
				label = *p.Name
			}
			fmt.Fprintln(out, row(label, fmt.Sprintf("%d (%s, updated %s)", p.Count, p.Scope, p.LastUpdated)))
		}
	}
	return nil
}
