package platform

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"heist/internal/action"
	"heist/internal/agent"
	"heist/internal/grid"
	"heist/internal/scape"
)

// PolicyRow flattens one learned state into numeric features plus the greedy
// action. Missing positions (hidden thief, absent gems or traps) are
// grid.Unknown and print as -1.
type PolicyRow struct {
	Key    string
	Thief  grid.Pos
	Guard  grid.Pos
	Alarm  bool
	Exit   grid.Pos
	Gems   [scape.GemCount]grid.Pos
	Traps  [scape.MaxTraps]grid.Pos
	Action action.Action
	Name   string
	Value  float64
}

var policyHeader = []string{
	"key",
	"thief_row", "thief_col",
	"guard_row", "guard_col",
	"alarm",
	"exit_row", "exit_col",
	"gem0_row", "gem0_col",
	"gem1_row", "gem1_col",
	"trap0_row", "trap0_col",
	"trap1_row", "trap1_col",
	"action", "action_name", "value",
}

// PolicyRows lists the greedy action for every state in t, in key order. Ties
// go to the lowest action index so the export is stable.
func PolicyRows(t *agent.Tabular) ([]PolicyRow, error) {
	keys := t.Keys()
	rows := make([]PolicyRow, 0, len(keys))
	for _, key := range keys {
		obs, err := scape.ParseKey(key)
		if err != nil {
			return nil, err
		}
		values, _ := t.Values(key)
		best := 0
		for i := 1; i < len(values); i++ {
			if values[i] > values[best] {
				best = i
			}
		}

		row := PolicyRow{
			Key:    key,
			Thief:  obs.Thief,
			Guard:  obs.Guard,
			Alarm:  obs.Alarm,
			Exit:   obs.Exit,
			Action: action.Action(best),
			Name:   action.Name(t.Role(), action.Action(best)),
			Value:  values[best],
		}
		for i := range row.Gems {
			row.Gems[i] = grid.Unknown
			if i < len(obs.Gems) {
				row.Gems[i] = obs.Gems[i]
			}
		}
		for i := range row.Traps {
			row.Traps[i] = grid.Unknown
			if i < len(obs.Traps) {
				row.Traps[i] = obs.Traps[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func WritePolicyCSV(w io.Writer, rows []PolicyRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(policyHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := make([]string, 0, len(policyHeader))
		record = append(record, r.Key)
		record = appendPos(record, r.Thief)
		record = appendPos(record, r.Guard)
		if r.Alarm {
			record = append(record, "1")
		} else {
			record = append(record, "0")
		}
		record = appendPos(record, r.Exit)
		for _, p := range r.Gems {
			record = appendPos(record, p)
		}
		for _, p := range r.Traps {
			record = appendPos(record, p)
		}
		record = append(record,
			strconv.Itoa(int(r.Action)),
			r.Name,
			strconv.FormatFloat(r.Value, 'g', -1, 64),
		)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write policy row %q: %w", r.Key, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func appendPos(record []string, p grid.Pos) []string {
	return append(record, strconv.Itoa(p.Row), strconv.Itoa(p.Col))
}
