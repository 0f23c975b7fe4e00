package api

import (
	"net/http"
	"strconv"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

func (s *Server) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.store.ListAuthors(r.Context(), listParams(r, store.AuthorFilters()))
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, authors)
}

func (s *Server) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, _ := lookupID(r, nil)
	author, err := s.store.Author(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, author)
}

func (s *Server) createAuthor(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, errs := model.DecodeAuthorInput(raw)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	author, err := s.store.CreateAuthor(r.Context(), in)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, author)
}

func (s *Server) updateAuthor(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, _ := lookupID(r, nil)
	in, errs := model.DecodeAuthorInput(raw)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	author, err := s.store.UpdateAuthor(r.Context(), id, in, r.Method == http.MethodPatch)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, author)
}

func (s *Server) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, _ := lookupID(r, nil)
	if err := s.store.DeleteAuthor(r.Context(), id); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listAuthorBooks lists one author's books with the usual list options.
func (s *Server) listAuthorBooks(w http.ResponseWriter, r *http.Request) {
	id, _ := lookupID(r, nil)
	if _, err := s.store.Author(r.Context(), id); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	p := listParams(r, store.BookFilters())
	p.Filters["author"] = strconv.FormatInt(id, 10)
	books, err := s.store.ListBooks(r.Context(), p)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, books)
}
