package http

import (
	"context"
	"errors"
	"net/http"

	"salvadanaio/internal/core"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/services"
)

// commandResponse is the body of every accepted command.
type commandResponse struct {
	Revision uint64 `json:"revision"`
	ID       string `json:"id,omitempty"`
	// LocalError is set when the snapshot could not be cached locally.
	LocalError string               `json:"localError,omitempty"`
	Push       services.PushStatus `json:"push"`
}

// respondCommand writes the outcome of a command. The command is applied
// once it returns without error; the push outcome only rides along, awaited
// when the caller passed ?wait=1.
func (s *Server) respondCommand(w http.ResponseWriter, r *http.Request, status int, res *services.Result, err error) {
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}

	body := commandResponse{
		Revision: res.Revision,
		ID:       res.ID,
		Push:     services.PushStatus{Revision: res.Revision, State: services.PushPending, UpdatedAt: s.now().UTC()},
	}
	if res.LocalErr != nil {
		body.LocalError = res.LocalErr.Error()
	}

	if wantsWait(r) && res.Push != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
		defer cancel()
		state, perr := res.Push.Wait(ctx)
		body.Push.State = state
		body.Push.UpdatedAt = s.now().UTC()
		if perr != nil && !errors.Is(perr, context.DeadlineExceeded) && !errors.Is(perr, context.Canceled) {
			body.Push.Error = perr.Error()
		}
	} else if st, ok := s.ledger.PushStatus(res.Revision); ok {
		body.Push = st
	}

	applog.FromContext(r.Context()).DebugContext(r.Context(), "Command answered",
		applog.FieldRevision, res.Revision,
		applog.FieldEntityID, res.ID,
		"push_state", string(body.Push.State))
	NewResponse().Status(status).JSON(body).Write(w)
}

// Accounts

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var a core.Account
	if err := decodeJSON(w, r, &a); err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	a.ID = sanitizeInput(a.ID)
	a.Name = sanitizeInput(a.Name)
	res, err := s.ledger.AddAccount(r.Context(), a)
	s.respondCommand(w, r, http.StatusCreated, res, err)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var a core.Account
	id, err := decodeWithID(w, r, &a, &a.ID)
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	a.ID = id
	a.Name = sanitizeInput(a.Name)
	res, err := s.ledger.UpdateAccount(r.Context(), a)
	s.respondCommand(w, r, http.StatusOK, res, err)
}

// handleDeleteAccount removes the account and every transaction on it.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.ledger.DeleteAccount)
}

// Categories

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	c.ID = sanitizeInput(c.ID)
	c.Name = sanitizeInput(c.Name)
	c.IconTag = sanitizeInput(c.IconTag)
	res, err := s.ledger.AddCategory(r.Context(), c)
	s.respondCommand(w, r, http.StatusCreated, res, err)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	id, err := decodeWithID(w, r, &c, &c.ID)
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	c.ID = id
	c.Name = sanitizeInput(c.Name)
	c.IconTag = sanitizeInput(c.IconTag)
	res, err := s.ledger.UpdateCategory(r.Context(), c)
	s.respondCommand(w, r, http.StatusOK, res, err)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.ledger.DeleteCategory)
}

// Savings goals

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var g core.SavingsGoal
	if err := decodeJSON(w, r, &g); err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	g.ID = sanitizeInput(g.ID)
	g.Name = sanitizeInput(g.Name)
	res, err := s.ledger.AddSavingsGoal(r.Context(), g)
	s.respondCommand(w, r, http.StatusCreated, res, err)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var g core.SavingsGoal
	id, err := decodeWithID(w, r, &g, &g.ID)
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	g.ID = id
	g.Name = sanitizeInput(g.Name)
	res, err := s.ledger.UpdateSavingsGoal(r.Context(), g)
	s.respondCommand(w, r, http.StatusOK, res, err)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.ledger.DeleteSavingsGoal)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	goalID, err := pathID(r, "id")
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	var req contributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	var date core.Date
	if req.Date != nil {
		date = *req.Date
	}
	res, err := s.ledger.ContributeToGoal(r.Context(), goalID, sanitizeInput(req.AccountID), req.Amount, date)
	s.respondCommand(w, r, http.StatusCreated, res, err)
}

// Transactions

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	cleanTransaction(&tx)
	res, err := s.ledger.AddTransaction(r.Context(), tx)
	s.respondCommand(w, r, http.StatusCreated, res, err)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	id, err := decodeWithID(w, r, &tx, &tx.ID)
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	cleanTransaction(&tx)
	tx.ID = id
	res, err := s.ledger.UpdateTransaction(r.Context(), tx)
	s.respondCommand(w, r, http.StatusOK, res, err)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.ledger.DeleteTransaction)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	res, err := s.ledger.TransferBetweenAccounts(r.Context(),
		sanitizeInput(req.FromAccountID), sanitizeInput(req.ToAccountID), req.Amount)
	s.respondCommand(w, r, http.StatusOK, res, err)
}

// handlePurge deletes the remote document and empties the profile.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Purge(r.Context())
	s.respondCommand(w, r, http.StatusOK, res, err)
}

func (s *Server) deleteByID(w http.ResponseWriter, r *http.Request, del func(context.Context, string) (*services.Result, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	res, err := del(r.Context(), id)
	s.respondCommand(w, r, http.StatusOK, res, err)
}

// decodeWithID decodes the body into v and reconciles the id it carries,
// pointed to by bodyID, with the one in the path.
func decodeWithID(w http.ResponseWriter, r *http.Request, v any, bodyID *string) (string, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return "", err
	}
	if err := decodeJSON(w, r, v); err != nil {
		return "", err
	}
	if b := sanitizeInput(*bodyID); b != "" && b != id {
		return "", badRequest("body id %q does not match path id %q", b, id)
	}
	return id, nil
}
