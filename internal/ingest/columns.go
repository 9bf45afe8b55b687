package ingest

import (
	"fmt"
	"strings"

	"github.com/chrissnell/thermoffset/internal/types"
)

// Column is a standardized recording channel
type Column string

const (
	ColTime    Column = "Time"
	ColHolder  Column = "Holder Temperature"
	ColLiquid  Column = "Liquid Temperature"
	ColTarget  Column = "Target Temperature"
	ColSink    Column = "Heatsink Temperature"
	ColAmbient Column = "Room Temperature"
	ColPower   Column = "Power"
)

// columnAliases lists the header spellings accepted for each channel, in
// matching order
var columnAliases = []struct {
	column  Column
	aliases []string
}{
	{ColTime, []string{"Time", "time", "timestamp", "Timestamp", "elapse", "elapsed_seconds"}},
	{ColHolder, []string{"Holder Temperature", "holder_temp", "holderTemp", "Holder Temp", "holder"}},
	{ColLiquid, []string{"Liquid Temperature", "liquid_temp", "liquidTemp", "Liquid Temp", "liquid"}},
	{ColTarget, []string{"Target Temperature", "target_temp", "targetTemp", "Target Temp", "target"}},
	{ColSink, []string{"Heatsink Temperature", "sink_temp", "heatsink_temp", "Sink Temperature", "sink"}},
	{ColAmbient, []string{"Room Temperature", "ambient_temp", "room_temp", "Ambient Temperature", "ambient"}},
	{ColPower, []string{"Power", "power", "Power (W)", "pwr"}},
}

var requiredColumns = []Column{ColTime, ColHolder, ColLiquid, ColTarget, ColAmbient}

// StandardizeColumns maps header cells to channels. Exact alias matches are
// taken first, then case-insensitive substring matches against the
// remaining cells. A header cell is assigned to at most one channel.
func StandardizeColumns(header []string) (map[Column]int, error) {
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = strings.TrimSpace(strings.Trim(h, "\"\ufeff"))
	}

	mapping := make(map[Column]int)
	claimed := make(map[int]bool)

	for _, ca := range columnAliases {
		for i, cell := range cells {
			if !claimed[i] && contains(ca.aliases, cell) {
				mapping[ca.column] = i
				claimed[i] = true
				break
			}
		}
	}

	for _, ca := range columnAliases {
		if _, ok := mapping[ca.column]; ok {
			continue
		}
	search:
		for i, cell := range cells {
			if claimed[i] {
				continue
			}
			lower := strings.ToLower(cell)
			for _, alias := range ca.aliases {
				if strings.Contains(lower, strings.ToLower(alias)) {
					mapping[ca.column] = i
					claimed[i] = true
					break search
				}
			}
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := mapping[c]; !ok {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return mapping, fmt.Errorf("%w: missing required columns: %s", types.ErrData, strings.Join(missing, ", "))
	}

	return mapping, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
