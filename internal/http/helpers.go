package http

import (
	"strconv"
	"strings"

	"salvadanaio/internal/core"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func overviewKey(revision uint64, year, month int) string {
	return strconv.FormatUint(revision, 10) + ":" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// overviewView decorates a month overview with amounts formatted in the
// configured currency.
type overviewView struct {
	core.MonthOverview
	Revision uint64            `json:"revision"`
	Net      core.Money        `json:"net"`
	Display  map[string]string `json:"display"`
}

func newOverviewView(ov core.MonthOverview, revision uint64, currency string) overviewView {
	net := ov.Income.Sub(ov.Expenses)
	return overviewView{
		MonthOverview: ov,
		Revision:      revision,
		Net:           net,
		Display: map[string]string{
			"income":   ov.Income.Display(currency),
			"expenses": ov.Expenses.Display(currency),
			"net":      net.Display(currency),
		},
	}
}
