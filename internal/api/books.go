package api

import (
	"net/http"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.store.ListBooks(r.Context(), listParams(r, store.BookFilters()))
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, books)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	id, ok := lookupID(r, nil)
	if !ok {
		respondError(w, http.StatusNotFound, "Not found.")
		return
	}
	book, err := s.store.Book(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, book)
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, errs := model.DecodeBookInput(raw)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	book, err := s.store.CreateBook(r.Context(), in)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, book)
}

// updateBook replaces the book on PUT and patches it on PATCH.
func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, ok := lookupID(r, raw)
	if !ok {
		respondError(w, http.StatusNotFound, "Not found.")
		return
	}
	in, errs := model.DecodeBookInput(raw)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	book, err := s.store.UpdateBook(r.Context(), id, in, r.Method == http.MethodPatch)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, book)
}

func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, ok := lookupID(r, raw)
	if !ok {
		respondError(w, http.StatusNotFound, "Not found.")
		return
	}
	if err := s.store.DeleteBook(r.Context(), id); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
