package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pebly/pebly/internal/models"
	"github.com/pebly/pebly/internal/resolver"
)

const sessionCookie = "pebly_sid"

type RedirectHandler struct {
	Resolver *resolver.Resolver
}

// ServeHTTP handles GET /{code}. It is registered as the router's NotFound
// handler so every path that is not an API route is a short-code lookup.
func (h *RedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/")
	if code == "" || strings.Contains(code, "/") {
		http.NotFound(w, r)
		return
	}
	h.resolve(w, r, code, "")
}

// Unlock handles POST /{code}/unlock and re-enters the resolver at the
// password gate.
func (h *RedirectHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.resolve(w, r, code, r.PostFormValue("password"))
}

func (h *RedirectHandler) resolve(w http.ResponseWriter, r *http.Request, code, password string) {
	// chi's RealIP middleware already sets RemoteAddr from X-Forwarded-For/X-Real-IP
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}

	res, err := h.Resolver.Resolve(r.Context(), resolver.Request{
		Code:      code,
		Password:  password,
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		SessionID: ensureSession(w, r),
	})
	if err != nil {
		if errors.Is(err, models.ErrUnavailable) {
			http.Error(w, "Service temporarily unavailable. Please try again.", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch res.Outcome {
	case resolver.OutcomeRedirect:
		http.Redirect(w, r, res.Destination, http.StatusFound)
	case resolver.OutcomePasswordRequired:
		renderPasswordPage(w, code, "")
	case resolver.OutcomePasswordIncorrect:
		renderPasswordPage(w, code, "Incorrect password. Please try again.")
	case resolver.OutcomeDenied:
		renderDeniedPage(w, res.Reason)
	default:
		http.NotFound(w, r)
	}
}

// ensureSession returns the visitor session id, minting a cookie when the
// request came without one.
func ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func renderPasswordPage(w http.ResponseWriter, code, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	escaped := template.HTMLEscapeString(code)
	var notice string
	if errMsg != "" {
		notice = "<p>" + template.HTMLEscapeString(errMsg) + "</p>"
	}
	fmt.Fprintf(w, `<!doctype html>
<title>Password required</title>
<h1>This link is password protected</h1>
%s
<form method="post" action="/%s/unlock">
  <input type="password" name="password" autofocus>
  <button type="submit">Unlock</button>
</form>
`, notice, escaped)
}

// Each denial reason gets its own page: an expired link, an exhausted cap and
// an owner-disabled link are operationally different things for the owner to
// hear about.
func renderDeniedPage(w http.ResponseWriter, reason models.DenyReason) {
	var msg string
	switch reason {
	case models.DenyExpired:
		msg = "This link has expired."
	case models.DenyExhausted:
		msg = "This link has reached its click limit."
	case models.DenyDisabled:
		msg = "This link has been disabled by its owner."
	default:
		msg = "This link is no longer available."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusGone)
	fmt.Fprintf(w, "<!doctype html>\n<title>Link unavailable</title>\n<h1>%s</h1>\n", template.HTMLEscapeString(msg))
}
