package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/storage"
)

const (
	msgNotFound         = "Transaction not found"
	msgNotAuthorized    = "Not authorized"
	msgRemoved          = "Transaction removed"
	msgServerError      = "Server error"
	msgBudgetNotFound   = "Budget not found"
	msgBudgetRemoved    = "Budget removed"
	msgCategoryNotFound = "Category not found"
	msgCategoryRemoved  = "Category removed"
	msgUnsupported      = "Not supported"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	list, ok := s.listCache.Get(owner)
	if !ok {
		gen := s.listCache.Generation()
		var err error
		list, err = s.store.List(r.Context(), owner)
		if err != nil {
			s.writeStoreError(w, r, log.OpList, err)
			return
		}
		s.listCache.SetIfGeneration(owner, list, gen)
	}

	out := make([]remote.TransactionJSON, 0, len(list))
	for _, t := range list {
		out = append(out, remote.EncodeTransaction(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body remote.TransactionJSON
	if !decodeJSON(w, r, &body) {
		return
	}
	d, err := body.Draft()
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	d.Category = sanitizeInput(d.Category)
	d.PaymentMethod = sanitizeInput(d.PaymentMethod)
	d.Note = sanitizeInput(d.Note)
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerFrom(r.Context())
	t, err := s.store.Create(r.Context(), owner, d)
	if err != nil {
		s.writeStoreError(w, r, log.OpCreate, err)
		return
	}
	s.listCache.Delete(owner)

	log.FromContext(r.Context()).Info("Transaction created",
		log.NewFields().WithTransaction(t.ID, t.Amount.Cents, t.Category, string(t.Kind)).ToSlice()...)
	writeJSON(w, http.StatusOK, remote.EncodeTransaction(t))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body remote.PatchJSON
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := body.Patch()
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, f := range []*string{p.Category, p.PaymentMethod, p.Note} {
		if f != nil {
			*f = sanitizeInput(*f)
		}
	}
	if err := p.Validate(); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerFrom(r.Context())
	t, err := s.store.Update(r.Context(), owner, id, p)
	if err != nil {
		s.writeStoreError(w, r, log.OpUpdate, err)
		return
	}
	s.listCache.Delete(owner)
	writeJSON(w, http.StatusOK, remote.EncodeTransaction(t))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	if err := s.store.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeStoreError(w, r, log.OpDelete, err)
		return
	}
	s.listCache.Delete(owner)
	writeMsg(w, http.StatusOK, msgRemoved)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	if s.budgets == nil {
		writeMsg(w, http.StatusNotImplemented, msgUnsupported)
		return
	}
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	records, err := s.budgets.ListBudgets(r.Context(), ownerFrom(r.Context()), month)
	if err != nil {
		s.writeStoreError(w, r, log.OpList, err)
		return
	}
	out := make([]remote.BudgetJSON, 0, len(records))
	for _, b := range records {
		out = append(out, encodeBudget(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	if s.budgets == nil {
		writeMsg(w, http.StatusNotImplemented, msgUnsupported)
		return
	}
	var body remote.BudgetJSON
	if !decodeJSON(w, r, &body) {
		return
	}
	body.Category = sanitizeInput(body.Category)
	l, err := body.BudgetLimit()
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.budgets.UpsertBudget(r.Context(), ownerFrom(r.Context()), l, strings.TrimSpace(body.Month))
	if err != nil {
		s.writeStoreError(w, r, log.OpPersist, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeBudget(rec))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if s.budgets == nil {
		writeMsg(w, http.StatusNotImplemented, msgUnsupported)
		return
	}
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if err := s.budgets.DeleteBudget(r.Context(), ownerFrom(r.Context()), r.PathValue("category"), month); err != nil {
		s.writeStoreError(w, r, log.OpDelete, err)
		return
	}
	writeMsg(w, http.StatusOK, msgBudgetRemoved)
}

func encodeBudget(b storage.BudgetRecord) remote.BudgetJSON {
	return remote.EncodeBudget(core.BudgetLimit{Scope: b.Scope, Limit: b.Limit}, b.Month)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if s.categories == nil {
		writeMsg(w, http.StatusNotImplemented, msgUnsupported)
		return
	}
	list, err := s.categories.ListCategories(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, r, log.OpList, err)
		return
	}
	out := make([]remote.CategoryJSON, 0, len(list))
	for _, c := range list {
		out = append(out, remote.EncodeCategory(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if s.categories == nil {
		writeMsg(w, http.StatusNotImplemented, msgUnsupported)
		return
	}
	var body remote.CategoryJSON
	if !decodeJSON(w, r, &body) {
		return
	}
	c := body.Category()
	c.ID = ""
	c.Name = sanitizeInput(c.Name)
	c.Icon = sanitizeInput(c.Icon)
	if err := c.Validate(); err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.categories.CreateCategory(r.Context(), ownerFrom(r.Context()), c)
	if err != nil {
		s.writeStoreError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.EncodeCategory(created))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if s.categories == nil {
		writeMsg(w, http.StatusNotImplemented, msgUnsupported)
		return
	}
	if err := s.categories.DeleteCategory(r.Context(), ownerFrom(r.Context()), r.PathValue("id")); err != nil {
		s.writeStoreError(w, r, log.OpDelete, err)
		return
	}
	writeMsg(w, http.StatusOK, msgCategoryRemoved)
}

// writeStoreError maps store failures onto the API's status codes. Anything
// unrecognised is logged and reported as a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrBudgetNotFound):
		writeMsg(w, http.StatusNotFound, msgBudgetNotFound)
	case errors.Is(err, storage.ErrCategoryNotFound):
		writeMsg(w, http.StatusNotFound, msgCategoryNotFound)
	case errors.Is(err, remote.ErrNotFound):
		writeMsg(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, storage.ErrNotOwner):
		writeMsg(w, http.StatusUnauthorized, msgNotAuthorized)
	case isValidationError(err):
		writeMsg(w, http.StatusBadRequest, err.Error())
	default:
		log.FromContext(r.Context()).Error("Store operation failed",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
		writeMsg(w, http.StatusInternalServerError, msgServerError)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrEmptyCategory, core.ErrInvalidKind,
		core.ErrInvalidDate, core.ErrNoteTooLong, core.ErrEmptyPatch, core.ErrEmptyScope, storage.ErrInvalidMonth,
		core.ErrMissingIcon, core.ErrInvalidColor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
