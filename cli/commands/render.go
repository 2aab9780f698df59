package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/chainq-dev/chainq/query/plan"
	"github.com/chainq-dev/chainq/runtime"
	"github.com/chainq-dev/chainq/runtime/repo"
	"github.com/chainq-dev/chainq/schema"
)

// renderResult prints a query result in a shape-appropriate form: records
// as tables, scalars inline, streams row by row.
func renderResult(result interface{}) error {
	switch v := result.(type) {
	case nil:
		color.Yellow("no result")
		return nil
	case schema.Record:
		return renderRecords([]schema.Record{v})
	case []schema.Record:
		if len(v) == 0 {
			color.Yellow("no rows")
			return nil
		}
		return renderRecords(v)
	case []runtime.GroupRow:
		return renderGroups(v)
	case int64:
		fmt.Println(v)
		return nil
	case bool:
		fmt.Println(v)
		return nil
	case <-chan repo.StreamItem:
		return renderStream(v)
	case *plan.Plan:
		color.Cyan("query handle over %s (no terminal operation)", v.Source)
		return nil
	default:
		fmt.Println(v)
		return nil
	}
}

func renderRecords(recs []schema.Record) error {
	cols := columnOrder(recs[0])
	data := pterm.TableData{cols}
	for _, rec := range recs {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = formatValue(rec[col])
		}
		data = append(data, row)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderGroups(groups []runtime.GroupRow) error {
	data := pterm.TableData{{"key", "value"}}
	for _, g := range groups {
		data = append(data, []string{formatValue(g.Key), formatValue(g.Values)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderStream(ch <-chan repo.StreamItem) error {
	n := 0
	for item := range ch {
		if item.Err != nil {
			return item.Err
		}
		cols := columnOrder(item.Record)
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = col + "=" + formatValue(item.Record[col])
		}
		fmt.Println(strings.Join(parts, " "))
		n++
	}
	color.Cyan("%d rows", n)
	return nil
}

func columnOrder(rec schema.Record) []string {
	cols := make([]string, 0, len(rec))
	for col := range rec {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func formatValue(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

