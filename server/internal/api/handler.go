package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/sensorhub/sensorhub/pkg/types"
	"github.com/sensorhub/sensorhub/server/internal/alerts"
	"github.com/sensorhub/sensorhub/server/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler is the HTTP handler for the sensorhub API.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine
	router *mux.Router
}

// New creates a Handler wired to st and registers all routes.
// al may be nil, in which case GET /alerts returns an empty list.
//
// Routes match the escaped path so that a group name containing "/" is
// addressed as %2F; path variables are unescaped by pathVar.
func New(st *store.Store, al *alerts.Engine) *Handler {
	h := &Handler{store: st, alerts: al, router: mux.NewRouter().UseEncodedPath()}

	r := h.router
	r.HandleFunc("/groups", h.listGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups", h.createGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups", h.deleteGroup).Methods(http.MethodDelete)
	r.HandleFunc("/groups/", h.deleteGroup).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{name}", h.deleteGroup).Methods(http.MethodDelete)
	r.HandleFunc("/data/{group}", h.ingest).Methods(http.MethodPost)
	r.HandleFunc("/logs/{group}", h.getLogs).Methods(http.MethodGet)
	r.HandleFunc("/alerts", h.listAlerts).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return h
}

// Mount serves handler at path for GET requests, e.g. /metrics or the
// WebSocket stream.
func (h *Handler) Mount(path string, handler http.Handler) {
	h.router.Handle(path, handler).Methods(http.MethodGet)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// createGroup handles POST /groups.
func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	g, err := h.store.CreateGroup(req.Name)
	if err != nil {
		h.storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, CreateGroupResponse{
		Message: fmt.Sprintf("group %s created", g.Name),
		Name:    g.Name,
	})
}

// deleteGroup handles DELETE /groups/{name}. Without a name it is a 400.
func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	name, ok := pathVar(w, r, "name")
	if !ok {
		return
	}
	if name == "" {
		jsonErr(w, http.StatusBadRequest, store.ErrInvalidName.Error())
		return
	}
	if err := h.store.DeleteGroup(name); err != nil {
		h.storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("group %q deleted", name),
	})
}

// listGroups handles GET /groups.
func (h *Handler) listGroups(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.store.ListGroups())
}

// ingest handles POST /data/{group}. Both fields must be JSON numbers.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	group, ok := pathVar(w, r, "group")
	if !ok {
		return
	}

	var sample types.Sample
	if err := decodeBody(w, r, &sample); err != nil {
		jsonErr(w, http.StatusBadRequest, "temperature and humidity must be numbers")
		return
	}
	t, hum, ok := sample.Values()
	if !ok {
		jsonErr(w, http.StatusBadRequest, "temperature and humidity must be numbers")
		return
	}

	reading, err := h.store.Ingest(group, t, hum)
	if err != nil {
		h.storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, IngestResponse{Message: "data received", Log: reading})
}

// getLogs handles GET /logs/{group}.
func (h *Handler) getLogs(w http.ResponseWriter, r *http.Request) {
	group, ok := pathVar(w, r, "group")
	if !ok {
		return
	}
	logs, err := h.store.GetLogs(group)
	if err != nil {
		h.storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, logs)
}

// listAlerts handles GET /alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// health handles GET /healthz.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Groups: len(h.store.ListGroups()),
	})
}

// --- helpers ----------------------------------------------------------------

// storeErr maps a store error to its HTTP status.
func (h *Handler) storeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidName),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrInvalidInput):
		jsonErr(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("api: store operation failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", RequestID(r.Context()), "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

// pathVar returns the unescaped route variable key. On a malformed escape it
// writes a 400 and reports false.
func pathVar(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(mux.Vars(r)[key])
	if err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("invalid %s in path", key))
		return "", false
	}
	return v, true
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched and is not an error.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
