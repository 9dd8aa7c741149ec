package evidence

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// -------------------- Instruction Grouping --------------------

// MergeGroups folds per-source instruction groups into one group per
// client+symbol. A forwarded thread repeats the same instruction in
// several sources; identical instructions collapse to one via an
// exact-field signature. Output order is first appearance of each
// group key, so one run's processing order is stable.
func MergeGroups(groups []InstructionGroup) []InstructionGroup {
	var keys []string
	merged := make(map[string]*InstructionGroup)
	seen := make(map[string]map[string]bool) // group key -> instruction signature

	for _, g := range groups {
		for _, ins := range g.Instructions {
			symbol := ins.Symbol
			if symbol == "" {
				symbol = g.Symbol
			}
			if symbol == "" || g.ClientID == "" {
				continue
			}
			key := g.ClientID + "_" + symbol

			target, ok := merged[key]
			if !ok {
				target = &InstructionGroup{
					ClientID:  g.ClientID,
					Symbol:    symbol,
					SourceRef: g.SourceRef,
					Content:   g.Content,
				}
				merged[key] = target
				seen[key] = make(map[string]bool)
				keys = append(keys, key)
			}

			sig := signature(ins, symbol)
			if seen[key][sig] {
				continue
			}
			seen[key][sig] = true
			ins.Symbol = symbol
			target.Instructions = append(target.Instructions, ins)
		}
	}

	out := make([]InstructionGroup, 0, len(keys))
	for _, key := range keys {
		out = append(out, *merged[key])
	}
	return out
}

func signature(ins Instruction, symbol string) string {
	return strings.Join([]string{
		symbol,
		strconv.FormatInt(ins.Quantity, 10),
		ins.Price,
		strings.ToUpper(ins.Side),
		ins.Time,
	}, "|")
}

// -------------------- Call Consolidation --------------------

// ConsolidateCalls merges calls from the same caller whose start
// times sit within gap of the previous call in the cluster. The
// merged call spans the whole cluster and carries every file ref.
func ConsolidateCalls(calls []Call, gap time.Duration) []Call {
	if len(calls) <= 1 {
		return calls
	}

	byClient := make(map[string][]Call)
	var clients []string
	for _, c := range calls {
		if _, ok := byClient[c.ClientID]; !ok {
			clients = append(clients, c.ClientID)
		}
		byClient[c.ClientID] = append(byClient[c.ClientID], c)
	}

	var out []Call
	for _, client := range clients {
		cs := byClient[client]
		sort.Slice(cs, func(i, j int) bool { return cs[i].WindowStart.Before(cs[j].WindowStart) })

		cur := cs[0]
		lastStart := cur.WindowStart
		for _, c := range cs[1:] {
			if c.WindowStart.Sub(lastStart) <= gap {
				cur = mergeCalls(cur, c)
				lastStart = c.WindowStart
				continue
			}
			out = append(out, cur)
			cur = c
			lastStart = c.WindowStart
		}
		out = append(out, cur)
	}
	return out
}

func mergeCalls(a, b Call) Call {
	if b.WindowEnd.After(a.WindowEnd) {
		a.WindowEnd = b.WindowEnd
	}
	if b.FileRef != "" {
		if a.FileRef != "" {
			a.FileRef += "," + b.FileRef
		} else {
			a.FileRef = b.FileRef
		}
	}
	if b.Extract != "" {
		if a.Extract != "" {
			a.Extract += "\n" + b.Extract
		} else {
			a.Extract = b.Extract
		}
	}
	a.AllClientIDs = unionIDs(a.AllClientIDs, b.AllClientIDs)
	return a
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			a = append(a, id)
		}
	}
	return a
}
