package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pebly/pebly/internal/cache"
	"github.com/pebly/pebly/internal/code"
	"github.com/pebly/pebly/internal/config"
	"github.com/pebly/pebly/internal/models"
)

type LinkHandler struct {
	DB    *sql.DB
	Cfg   *config.Config
	Cache *cache.LinkCache
}

type createLinkRequest struct {
	Destination    string `json:"destination"`
	Alias          string `json:"alias"`
	Password       string `json:"password"`
	ExpirationDays int    `json:"expiration_days"`
	MaxClicks      int64  `json:"max_clicks"`
	OneTime        bool   `json:"one_time"`
}

type updateLinkRequest struct {
	Destination    *string `json:"destination"`
	Password       *string `json:"password"`
	ExpirationDays *int    `json:"expiration_days"`
	MaxClicks      *int64  `json:"max_clicks"`
	IsActive       *bool   `json:"is_active"`
}

type listResponse struct {
	Links  []models.Link `json:"links"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if !validDestination(req.Destination) {
		jsonError(w, "destination must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if req.MaxClicks < 0 {
		jsonError(w, "max_clicks must not be negative", http.StatusBadRequest)
		return
	}
	if req.ExpirationDays < 0 {
		jsonError(w, "expiration_days must not be negative", http.StatusBadRequest)
		return
	}

	link := &models.Link{
		Destination: req.Destination,
		MaxClicks:   req.MaxClicks,
		IsOneTime:   req.OneTime,
	}
	if req.OneTime {
		// One-time is a click cap of exactly 1.
		link.MaxClicks = 1
	}
	if req.ExpirationDays > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpirationDays) * 24 * time.Hour)
		link.ExpiresAt = &t
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.Cfg.BcryptCost)
		if err != nil {
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		link.PasswordHash = string(hash)
	}

	err := code.Allocate(r.Context(), h.DB, link, req.Alias, h.Cfg.CodeLength, h.Cfg.CodeAttempts)
	switch {
	case err == nil:
	case errors.Is(err, code.ErrInvalidAlias):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, models.ErrAliasTaken):
		jsonError(w, "alias already taken", http.StatusConflict)
		return
	case errors.Is(err, code.ErrCodeSpaceExhausted):
		jsonError(w, "could not allocate a unique code", http.StatusInternalServerError)
		return
	default:
		jsonError(w, "failed to create link", http.StatusInternalServerError)
		return
	}

	link.FillShortURL(h.Cfg.BaseURL)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(link)
}

func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 25
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	search := r.URL.Query().Get("search")

	links, total, err := models.ListLinks(r.Context(), h.DB, limit, offset, search)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if links == nil {
		links = []models.Link{}
	}
	for i := range links {
		links[i].FillShortURL(h.Cfg.BaseURL)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listResponse{
		Links:  links,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := models.GetLinkByCode(r.Context(), h.DB, chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	link.FillShortURL(h.Cfg.BaseURL)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link)
}

func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	c := chi.URLParam(r, "code")
	existing, err := models.GetLinkByCode(r.Context(), h.DB, c)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Destination != nil {
		if !validDestination(*req.Destination) {
			jsonError(w, "destination must be an absolute http(s) URL", http.StatusBadRequest)
			return
		}
		existing.Destination = *req.Destination
	}
	if req.Password != nil {
		if *req.Password == "" {
			existing.PasswordHash = ""
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), h.Cfg.BcryptCost)
			if err != nil {
				jsonError(w, "internal error", http.StatusInternalServerError)
				return
			}
			existing.PasswordHash = string(hash)
		}
	}
	if req.ExpirationDays != nil {
		if *req.ExpirationDays < 0 {
			jsonError(w, "expiration_days must not be negative", http.StatusBadRequest)
			return
		}
		if *req.ExpirationDays == 0 {
			existing.ExpiresAt = nil
		} else {
			t := time.Now().UTC().Add(time.Duration(*req.ExpirationDays) * 24 * time.Hour)
			existing.ExpiresAt = &t
		}
	}
	if req.MaxClicks != nil {
		if *req.MaxClicks < 0 {
			jsonError(w, "max_clicks must not be negative", http.StatusBadRequest)
			return
		}
		if existing.IsOneTime {
			jsonError(w, "cannot change the cap of a one-time link", http.StatusBadRequest)
			return
		}
		existing.MaxClicks = *req.MaxClicks
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := models.UpdateLink(r.Context(), h.DB, existing); err != nil {
		jsonError(w, "failed to update link", http.StatusInternalServerError)
		return
	}
	h.Cache.Invalidate(c)

	existing.FillShortURL(h.Cfg.BaseURL)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(existing)
}

func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c := chi.URLParam(r, "code")
	if err := models.SoftDeleteLink(r.Context(), h.DB, c); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.Cache.Invalidate(c)

	w.WriteHeader(http.StatusNoContent)
}

func validDestination(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
