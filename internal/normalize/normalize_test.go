package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"salvadanaio/internal/core"
)

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func sampleProfile() core.Profile {
	p := core.NewProfile("p1")
	p.Revision = 7
	p.UpdatedAt = t0
	p.Accounts = []core.Account{
		{ID: "a1", Name: "Cash", Balance: core.MustMoney("12.30"), InitialBalance: core.MustMoney("20"), CreatedAt: t0},
		{ID: "a2", Name: "Bank", Balance: core.MustMoney("-4"), CreatedAt: t0.Add(time.Minute)},
	}
	p.Categories = []core.Category{{ID: "c1", Name: "Food", IconTag: "utensils", CreatedAt: t0}}
	p.Transactions = []core.Transaction{
		{ID: "t3", Kind: core.Expense, Amount: core.MustMoney("1"), AccountID: "a1", Date: core.NewDate(2025, 4, 3), CreatedAt: t0},
		{ID: "t2", Kind: core.Income, Amount: core.MustMoney("2.50"), AccountID: "a2", Date: core.NewDate(2025, 4, 2), CreatedAt: t0.Add(2 * time.Hour), Tags: []string{"x", "y"}},
		{ID: "t1", Kind: core.Expense, Amount: core.MustMoney("3"), CategoryID: "c1", AccountID: "a1", Date: core.NewDate(2025, 4, 2), CreatedAt: t0.Add(time.Hour), Notes: "lunch"},
	}
	p.Goals = []core.SavingsGoal{{ID: "g1", Name: "Bike", TargetAmount: core.MustMoney("500"), CurrentAmount: core.MustMoney("50"), CreatedAt: t0}}
	p.Favorites = []core.Favorite{
		{ID: "f2", Label: "new", Ref: "t1", CreatedAt: t0.Add(time.Hour)},
		{ID: "f1", Label: "old", CreatedAt: t0},
	}
	p.Notes = []core.Note{{ID: "n1", Text: "hello", CreatedAt: t0}}
	p.Todos = []core.Todo{{ID: "d1", Text: "pay rent", Done: true, CreatedAt: t0}}
	return p
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestKeyedMapRoundTrip(t *testing.T) {
	p := sampleProfile()
	back := ToProfile(FromProfile(p))

	// every collection in sampleProfile is already in canonical order
	if got, want := jsonOf(t, back), jsonOf(t, p); got != want {
		t.Fatalf("round trip mismatch\n got %s\nwant %s", got, want)
	}
}

func TestEncodeDecode(t *testing.T) {
	p := sampleProfile()
	data, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"transactions":{"t1":`) {
		t.Fatalf("transactions not keyed by id: %s", data)
	}

	back, shapeErrs, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(shapeErrs) != 0 {
		t.Fatalf("unexpected shape errors: %v", shapeErrs)
	}
	if got, want := jsonOf(t, back), jsonOf(t, p); got != want {
		t.Fatalf("decode mismatch\n got %s\nwant %s", got, want)
	}
}

func TestTransactionsOrderedByTimestamp(t *testing.T) {
	m := map[string]core.Transaction{
		"b": {ID: "b", Date: core.NewDate(2025, 1, 2), CreatedAt: t0},
		"a": {ID: "a", Date: core.NewDate(2025, 1, 2), CreatedAt: t0},
		"c": {ID: "c", Date: core.NewDate(2025, 1, 2), CreatedAt: t0.Add(time.Second)},
		"d": {ID: "d", Date: core.NewDate(2025, 1, 9), CreatedAt: t0.Add(-time.Hour)},
		"e": {ID: "e", Date: core.NewDate(2024, 12, 31), CreatedAt: t0.Add(time.Hour)},
	}
	for i := 0; i < 10; i++ {
		got := ToOrderedList(m, compareTransactions)
		var ids []string
		for _, tx := range got {
			ids = append(ids, tx.ID)
		}
		if strings.Join(ids, ",") != "d,c,a,b,e" {
			t.Fatalf("order = %v", ids)
		}
	}
}

func TestDecodeOmitsMalformedEntries(t *testing.T) {
	payload := `{
		"id": "p1",
		"revision": 3,
		"accounts": {
			"a1": {"id": "a1", "name": "Cash", "balance": "10.00", "initialBalance": "0"},
			"a2": {"id": "a2", "name": "Bank", "balance": "not money"}
		},
		"transactions": {
			"t1": {"kind": "expense", "amount": "5", "accountId": "a1", "date": "2025-01-01"},
			"t2": {"id": "t2", "kind": "expense", "amount": "-5", "accountId": "a1", "date": "2025-01-01"},
			"t3": {"id": "t3", "kind": "gift", "amount": "5", "accountId": "a1", "date": "2025-01-01"},
			"t4": {"id": "other", "kind": "income", "amount": "5", "accountId": "a1", "date": "2025-01-01"},
			"t5": "garbage",
			"t6": {"id": "t6", "kind": "expense", "amount": "5", "accountId": "ghost", "date": "2025-01-01"},
			"t7": {"id": "t7", "kind": "income", "amount": "2", "accountId": "a1", "categoryId": "gone", "date": "2025-01-02"}
		},
		"goals": {"g1": {"id": "g1", "name": "Trip", "targetAmount": 100, "currentAmount": 0}},
		"todos": {"d1": {"text": "x", "done": "yes"}}
	}`

	p, shapeErrs, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Revision != 3 {
		t.Fatalf("revision = %d", p.Revision)
	}
	if len(p.Accounts) != 1 || p.Accounts[0].ID != "a1" {
		t.Fatalf("accounts = %+v", p.Accounts)
	}
	if len(p.Transactions) != 2 {
		t.Fatalf("transactions = %+v", p.Transactions)
	}
	for _, tx := range p.Transactions {
		if _, ok := p.Account(tx.AccountID); !ok {
			t.Fatalf("transaction %s references missing account %q", tx.ID, tx.AccountID)
		}
		if tx.ID == "t7" && tx.CategoryID != "" {
			t.Fatalf("dangling category kept: %q", tx.CategoryID)
		}
	}
	if len(p.Goals) != 1 || len(p.Todos) != 0 {
		t.Fatalf("goals=%d todos=%d", len(p.Goals), len(p.Todos))
	}
	// a2, t2, t3, t4, t5, t6, d1
	if len(shapeErrs) != 7 {
		t.Fatalf("shape errors = %d: %v", len(shapeErrs), shapeErrs)
	}
	for _, e := range shapeErrs {
		if !core.IsDataShape(e) {
			t.Fatalf("not a data shape error: %v", e)
		}
	}
}

func TestDecodeRejectsNonDocument(t *testing.T) {
	for _, payload := range []string{``, `[]`, `"x"`, `{"revision": 1}`} {
		if _, _, err := Decode([]byte(payload)); !errors.Is(err, ErrNotDocument) {
			t.Fatalf("payload %q: err = %v", payload, err)
		}
	}
}

func TestEmptyCollectionsStayNonNil(t *testing.T) {
	p, _, err := Decode([]byte(`{"id":"p1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Accounts == nil || p.Transactions == nil || p.Todos == nil {
		t.Fatalf("nil collection in %+v", p)
	}
}
