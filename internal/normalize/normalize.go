// Package normalize converts profile snapshots between the ordered lists the
// ledger works on and the id-keyed maps stored remotely.
//
// The remote store keeps no list order. ToOrderedList therefore always sorts
// on explicit fields and never relies on map iteration order.
package normalize

import (
	"cmp"
	"slices"
	"time"

	"salvadanaio/internal/core"
)

// ToKeyedMap indexes list by id. A later entry with the same id wins.
func ToKeyedMap[T any](list []T, id func(T) string) map[string]T {
	m := make(map[string]T, len(list))
	for _, v := range list {
		m[id(v)] = v
	}
	return m
}

// ToOrderedList rebuilds a list from m, sorted by compare.
func ToOrderedList[T any](m map[string]T, compare func(a, b T) int) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, compare)
	return out
}

// Document is the remote representation of a profile.
type Document struct {
	ID           string                      `json:"id"`
	Revision     uint64                      `json:"revision"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
	Accounts     map[string]core.Account     `json:"accounts"`
	Categories   map[string]core.Category    `json:"categories"`
	Transactions map[string]core.Transaction `json:"transactions"`
	Goals        map[string]core.SavingsGoal `json:"goals"`
	Favorites    map[string]core.Favorite    `json:"favorites"`
	Notes        map[string]core.Note        `json:"notes"`
	Todos        map[string]core.Todo        `json:"todos"`
}

func FromProfile(p core.Profile) Document {
	return Document{
		ID:           p.ID,
		Revision:     p.Revision,
		UpdatedAt:    p.UpdatedAt,
		Accounts:     ToKeyedMap(p.Accounts, func(a core.Account) string { return a.ID }),
		Categories:   ToKeyedMap(p.Categories, func(c core.Category) string { return c.ID }),
		Transactions: ToKeyedMap(p.Transactions, func(t core.Transaction) string { return t.ID }),
		Goals:        ToKeyedMap(p.Goals, func(g core.SavingsGoal) string { return g.ID }),
		Favorites:    ToKeyedMap(p.Favorites, func(f core.Favorite) string { return f.ID }),
		Notes:        ToKeyedMap(p.Notes, func(n core.Note) string { return n.ID }),
		Todos:        ToKeyedMap(p.Todos, func(t core.Todo) string { return t.ID }),
	}
}

// ToProfile rebuilds the ordered profile.
//
// Transactions come back newest first: by date, then creation time. Accounts,
// categories and goals come back in creation order. Favorites, notes and todos
// come back newest first. Ties fall back to id so the result is stable.
func ToProfile(d Document) core.Profile {
	return core.Profile{
		ID:        d.ID,
		Revision:  d.Revision,
		UpdatedAt: d.UpdatedAt,
		Accounts: ToOrderedList(d.Accounts, func(a, b core.Account) int {
			return oldestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}),
		Categories: ToOrderedList(d.Categories, func(a, b core.Category) int {
			return oldestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}),
		Transactions: ToOrderedList(d.Transactions, compareTransactions),
		Goals: ToOrderedList(d.Goals, func(a, b core.SavingsGoal) int {
			return oldestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}),
		Favorites: ToOrderedList(d.Favorites, func(a, b core.Favorite) int {
			return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}),
		Notes: ToOrderedList(d.Notes, func(a, b core.Note) int {
			return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}),
		Todos: ToOrderedList(d.Todos, func(a, b core.Todo) int {
			return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}),
	}
}

func compareTransactions(a, b core.Transaction) int {
	if c := b.Date.Compare(a.Date.Time); c != 0 {
		return c
	}
	return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
}

func newestFirst(ta, tb time.Time, ida, idb string) int {
	if c := tb.Compare(ta); c != 0 {
		return c
	}
	return cmp.Compare(ida, idb)
}

func oldestFirst(ta, tb time.Time, ida, idb string) int {
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return cmp.Compare(ida, idb)
}
