package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhle/mailcheck/internal/catalog"
	"github.com/nhle/mailcheck/internal/store"
)

// Levels carried in the message of a response.
const (
	levelSuccess = "success"
	levelError   = "error"
)

const maxImportBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

type accountView struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

type addRequest struct {
	Email       string `json:"email"`
	Address     string `json:"address"`
	AppPassword string `json:"app_password"`
	Secret      string `json:"secret"`
	Label       string `json:"label"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.catalog.List(r.Context())
	if err != nil {
		s.internalError(w, err, "listing accounts")
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{ID: a.ID, Address: a.Address, Label: a.Label})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

func (s *Server) handleCheckAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, levelError, "account not found")
			return
		}
		s.internalError(w, err, "loading account")
		return
	}

	res := s.checker.Check(r.Context(), acc)
	if res.Err != nil {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.catalog.List(r.Context())
	if err != nil {
		s.internalError(w, err, "listing accounts")
		return
	}

	results := s.checker.Run(r.Context(), accounts)
	writeJSON(w, http.StatusOK, map[string]any{"accounts": results})
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddRequest(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, levelError, err.Error())
		return
	}

	acc, err := s.catalog.Add(r.Context(), firstNonEmpty(req.Email, req.Address),
		firstNonEmpty(req.AppPassword, req.Secret), req.Label)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrInvalidAccount):
		writeMessage(w, http.StatusBadRequest, levelError, err.Error())
		return
	case errors.Is(err, store.ErrDuplicateAddress):
		writeMessage(w, http.StatusConflict, levelError, "address already exists")
		return
	default:
		s.internalError(w, err, "adding account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"account": accountView{ID: acc.ID, Address: acc.Address, Label: acc.Label},
		"message": "account added",
		"level":   levelSuccess,
	})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := s.catalog.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, levelError, "account not found")
			return
		}
		s.internalError(w, err, "deleting account")
		return
	}
	writeMessage(w, http.StatusOK, levelSuccess, "account deleted")
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "mailcheck-export-")
	if err != nil {
		s.internalError(w, err, "creating export directory")
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "accounts.db")
	if err := s.catalog.Export(r.Context(), path); err != nil {
		s.internalError(w, err, "exporting accounts")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", `attachment; filename="accounts.db"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	// Form posts carry the lines in the accounts field; the body has
	// already been parsed by then.
	var body io.Reader = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if isForm(r) {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeMessage(w, http.StatusBadRequest, levelError, "invalid form body")
			return
		}
		text := r.PostFormValue("accounts")
		if len(text) > maxImportBytes {
			writeMessage(w, http.StatusRequestEntityTooLarge, levelError, "import too large")
			return
		}
		body = strings.NewReader(text)
	}

	report, err := s.catalog.Import(r.Context(), body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeMessage(w, http.StatusRequestEntityTooLarge, levelError, "import too large")
			return
		}
		s.internalError(w, err, "importing accounts")
		return
	}

	level := levelSuccess
	if len(report.Failed) > 0 {
		level = levelError
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":  report,
		"message": "import finished",
		"level":   level,
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error, action string) {
	s.log.Error().Err(err).Msg(action)
	writeMessage(w, http.StatusInternalServerError, levelError, action+" failed")
}

func decodeAddRequest(r *http.Request) (addRequest, error) {
	var req addRequest
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid JSON body")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form body")
	}
	req.Email = r.PostFormValue("email")
	req.Address = r.PostFormValue("address")
	req.AppPassword = r.PostFormValue("app_password")
	req.Secret = r.PostFormValue("secret")
	req.Label = r.PostFormValue("label")
	return req, nil
}

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeMessage(w http.ResponseWriter, status int, level, message string) {
	writeJSON(w, status, messageResponse{Message: message, Level: level})
}

// writeJSON encodes v without HTML escaping so the folder error marker is
// sent as written.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"message":"encoding response failed","level":"error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
