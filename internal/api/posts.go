package api

import (
	"net/http"
	"strconv"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"
)

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context(), listParams(r, store.PostFilters()))
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, posts)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, _ := lookupID(r, nil)
	post, err := s.store.Post(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, post)
}

// createPost publishes a post as the calling user. Any author or
// published_date in the payload is ignored.
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, errs := model.DecodePostInput(raw)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	post, err := s.store.CreatePost(r.Context(), user.ID, in)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, post)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	raw, err := decodeJSON(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, _ := lookupID(r, nil)
	in, errs := model.DecodePostInput(raw)
	if len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, errs)
		return
	}
	post, err := s.store.UpdatePost(r.Context(), id, user.ID, in, r.Method == http.MethodPatch)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	id, _ := lookupID(r, nil)
	if err := s.store.DeletePost(r.Context(), id, user.ID); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listUserPosts lists the posts written by one user.
func (s *Server) listUserPosts(w http.ResponseWriter, r *http.Request) {
	id, _ := lookupID(r, nil)
	if _, err := s.store.User(r.Context(), id); err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	p := listParams(r, store.PostFilters())
	p.Filters["author"] = strconv.FormatInt(id, 10)
	posts, err := s.store.ListPosts(r.Context(), p)
	if err != nil {
		s.handleStoreErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, posts)
}
