package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"salvadanaio/internal/core"
)

var ErrNotDocument = errors.New("payload is not a profile document")

// Encode normalizes p and serializes it for the remote store.
func Encode(p core.Profile) ([]byte, error) {
	data, err := json.Marshal(FromProfile(p))
	if err != nil {
		return nil, fmt.Errorf("encode profile document: %w", err)
	}
	return data, nil
}

// Decode parses a remote payload back into a profile.
//
// Entries are decoded one by one. A malformed entry is left out and reported
// as a data_shape error in the returned slice; the rest of the document is
// still usable. The error result is set only when the payload as a whole
// cannot be read.
func Decode(data []byte) (core.Profile, []error, error) {
	doc, shapeErrs, err := DecodeDocument(data)
	if err != nil {
		return core.Profile{}, nil, err
	}
	return ToProfile(doc), shapeErrs, nil
}

type rawDocument struct {
	ID           string                     `json:"id"`
	Revision     uint64                     `json:"revision"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
	Accounts     map[string]json.RawMessage `json:"accounts"`
	Categories   map[string]json.RawMessage `json:"categories"`
	Transactions map[string]json.RawMessage `json:"transactions"`
	Goals        map[string]json.RawMessage `json:"goals"`
	Favorites    map[string]json.RawMessage `json:"favorites"`
	Notes        map[string]json.RawMessage `json:"notes"`
	Todos        map[string]json.RawMessage `json:"todos"`
}

func DecodeDocument(data []byte) (Document, []error, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, nil, fmt.Errorf("%w: %v", ErrNotDocument, err)
	}
	if strings.TrimSpace(raw.ID) == "" {
		return Document{}, nil, fmt.Errorf("%w: missing id", ErrNotDocument)
	}

	var errs []error
	doc := Document{ID: raw.ID, Revision: raw.Revision, UpdatedAt: raw.UpdatedAt}
	doc.Accounts = decodeEntries(raw.Accounts, "account", &errs,
		func(a *core.Account) *string { return &a.ID }, core.Account.Validate)
	doc.Categories = decodeEntries(raw.Categories, "category", &errs,
		func(c *core.Category) *string { return &c.ID }, core.Category.Validate)
	doc.Transactions = decodeEntries(raw.Transactions, "transaction", &errs,
		func(t *core.Transaction) *string { return &t.ID }, core.Transaction.Validate)
	doc.Goals = decodeEntries(raw.Goals, "goal", &errs,
		func(g *core.SavingsGoal) *string { return &g.ID }, core.SavingsGoal.Validate)
	doc.Favorites = decodeEntries(raw.Favorites, "favorite", &errs,
		func(f *core.Favorite) *string { return &f.ID }, nil)
	doc.Notes = decodeEntries(raw.Notes, "note", &errs,
		func(n *core.Note) *string { return &n.ID }, nil)
	doc.Todos = decodeEntries(raw.Todos, "todo", &errs,
		func(t *core.Todo) *string { return &t.ID }, nil)
	checkReferences(&doc, &errs)
	return doc, errs, nil
}

// checkReferences drops transactions whose account is not in the document
// and clears category references that point nowhere, as deleting the
// category would have.
func checkReferences(doc *Document, errs *[]error) {
	for key, tx := range doc.Transactions {
		if _, ok := doc.Accounts[tx.AccountID]; !ok {
			*errs = append(*errs, core.DataShapeError("transaction", key,
				fmt.Errorf("account %q does not exist", tx.AccountID)))
			delete(doc.Transactions, key)
			continue
		}
		if tx.CategoryID != "" {
			if _, ok := doc.Categories[tx.CategoryID]; !ok {
				tx.CategoryID = ""
				doc.Transactions[key] = tx
			}
		}
	}
}

// decodeEntries decodes each value of raw into T. An entry without an id
// takes its map key; an entry whose id disagrees with its key is rejected.
func decodeEntries[T any](raw map[string]json.RawMessage, entity string, errs *[]error, id func(*T) *string, check func(T) error) map[string]T {
	out := make(map[string]T, len(raw))
	for key, msg := range raw {
		var v T
		if err := json.Unmarshal(msg, &v); err != nil {
			*errs = append(*errs, core.DataShapeError(entity, key, err))
			continue
		}
		ref := id(&v)
		switch {
		case *ref == "":
			*ref = key
		case *ref != key:
			*errs = append(*errs, core.DataShapeError(entity, key, fmt.Errorf("id %q does not match key", *ref)))
			continue
		}
		if check != nil {
			if err := check(v); err != nil {
				*errs = append(*errs, core.DataShapeError(entity, key, err))
				continue
			}
		}
		out[key] = v
	}
	return out
}
