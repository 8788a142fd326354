// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"salvadanaio/internal/core"
)

const maxBodyBytes = 1 << 20

// requestError is a malformed request, answered with 400 before any command
// runs.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, defaulting
// to the month of now. Range checks are left to the ledger.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, badRequest("invalid year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, badRequest("invalid month %q", v)
		}
		params.Month = m
	}
	return params, nil
}

// decodeJSON reads one JSON object from the body into v. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return badRequest("request body is required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("request body larger than %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return badRequest("request body is required")
		case errors.Is(err, core.ErrInvalidAmount):
			return badRequest("invalid amount")
		}
		return badRequest("invalid JSON: %v", err)
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// pathID returns the named path value, cleaned of control characters.
func pathID(r *http.Request, name string) (string, error) {
	id := sanitizeInput(r.PathValue(name))
	if id == "" {
		return "", badRequest("missing %s", name)
	}
	return id, nil
}

func parseRevision(s string) (uint64, error) {
	rev, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || rev == 0 {
		return 0, badRequest("invalid revision %q", s)
	}
	return rev, nil
}

// wantsWait reports whether the caller asked to wait for the push outcome.
func wantsWait(r *http.Request) bool {
	v := strings.TrimSpace(r.URL.Query().Get("wait"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

type transferRequest struct {
	FromAccountID string     `json:"fromAccountId"`
	ToAccountID   string     `json:"toAccountId"`
	Amount        core.Money `json:"amount"`
}

type contributionRequest struct {
	AccountID string     `json:"accountId"`
	Amount    core.Money `json:"amount"`
	Date      *core.Date `json:"date,omitempty"`
}

// cleanTransaction trims free text fields of a decoded transaction.
func cleanTransaction(tx *core.Transaction) {
	tx.ID = sanitizeInput(tx.ID)
	tx.AccountID = sanitizeInput(tx.AccountID)
	tx.CategoryID = sanitizeInput(tx.CategoryID)
	tx.Notes = sanitizeInput(tx.Notes)
	for i, tag := range tx.Tags {
		tx.Tags[i] = sanitizeInput(tag)
	}
}
