// Package report renders ranked optimization results as terminal tables
// and Excel workbooks
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// Report is everything needed to render one optimization run
type Report struct {
	Title             string
	Objective         string
	Variables         []optimization.VariableRange
	Results           []optimization.Result
	TotalCombinations uint64
	Evaluated         int
	Failed            int
	Truncated         bool
}

// FromSummary builds a report from a finished grid search
func FromSummary(title string, space optimization.Config, s *optimization.Summary) Report {
	return Report{
		Title:             title,
		Objective:         s.Objective,
		Variables:         space.Variables,
		Results:           s.Results,
		TotalCombinations: s.TotalCombinations,
		Evaluated:         s.Evaluated,
		Failed:            s.Failed,
		Truncated:         s.Truncated,
	}
}

// Status describes how ranking treated a result
func Status(r optimization.Result) string {
	switch {
	case r.Failed():
		return "failed"
	case r.Excluded:
		return "excluded"
	case r.Penalized:
		return "penalized"
	default:
		return "ok"
	}
}

// columns returns the variable column headers in space order, plus any ids
// found only in assignments
func (r Report) columns() (ids, names []string) {
	seen := make(map[string]bool)
	for _, v := range r.Variables {
		name := v.Name
		if name == "" {
			name = v.VariableID
		}
		ids = append(ids, v.VariableID)
		names = append(names, name)
		seen[v.VariableID] = true
	}

	var extra []string
	for _, res := range r.Results {
		for id := range res.Assignment {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
	}
	sort.Strings(extra)
	return append(ids, extra...), append(names, extra...)
}

// ranked returns results with a rank, best first
func (r Report) ranked(top int) []optimization.Result {
	var out []optimization.Result
	for _, res := range r.Results {
		if res.Rank > 0 {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}

// WriteTable renders the top ranked results; top <= 0 renders all of them
func WriteTable(w io.Writer, r Report, top int) {
	ids, names := r.columns()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if r.Title != "" {
		t.SetTitle(strings.ToUpper(r.Title))
	}

	header := table.Row{"#"}
	for _, name := range names {
		header = append(header, name)
	}
	header = append(header, "Score", "Return %", "Sharpe", "Max DD %", "Trades", "Status")
	t.AppendHeader(header)

	ranked := r.ranked(top)
	for _, res := range ranked {
		row := table.Row{res.Rank}
		for _, id := range ids {
			if v, ok := res.Assignment[id]; ok {
				row = append(row, variables.FormatNumber(v))
			} else {
				row = append(row, "-")
			}
		}
		row = append(row, fmt.Sprintf("%.4f", res.Score))
		if m := res.Metrics; m != nil {
			row = append(row,
				fmt.Sprintf("%.2f", m.TotalReturnPct),
				fmt.Sprintf("%.2f", m.SharpeRatio),
				fmt.Sprintf("%.2f", m.MaxDrawdownPct),
				m.TotalTrades,
			)
		} else {
			row = append(row, "-", "-", "-", "-")
		}
		row = append(row, Status(res))
		t.AppendRow(row)
	}

	footer := fmt.Sprintf("objective %s | evaluated %d of %d | failed %d", r.Objective, r.Evaluated, r.TotalCombinations, r.Failed)
	if r.Truncated {
		footer += " | truncated"
	}
	t.SetCaption(footer)

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight}}
	for i := range len(ids) + 5 {
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	t.Render()
}

// WriteSpace renders the search space: one row per dimension and a caption
// with the grid size and how much of it a capped run would evaluate
func WriteSpace(w io.Writer, space optimization.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("SEARCH SPACE")
	t.AppendHeader(table.Row{"Variable", "Name", "Min", "Max", "Step", "Values"})

	for _, v := range space.Variables {
		t.AppendRow(table.Row{
			v.VariableID,
			v.Name,
			variables.FormatNumber(v.Min),
			variables.FormatNumber(v.Max),
			variables.FormatNumber(v.Step),
			v.Steps(),
		})
	}

	e := optimization.NewEnumerator(space)
	caption := fmt.Sprintf("%d combinations", e.Total())
	if e.Truncated() {
		caption += fmt.Sprintf(" | capped at %d", e.Len())
	}
	t.SetCaption(caption)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	t.Render()
}
