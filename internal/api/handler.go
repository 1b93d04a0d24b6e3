package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tidewatch/tidewatch/internal/ingest"
	"github.com/tidewatch/tidewatch/internal/meta"
	"github.com/tidewatch/tidewatch/internal/notify"
	"github.com/tidewatch/tidewatch/internal/store"
	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/internal/zones"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// maxBody bounds request bodies on the ingest and edit routes.
const maxBody = 4 << 20

// UnitStore persists the unit-default preference.
type UnitStore interface {
	SaveUnitDefaults(map[string]string) error
}

// Deps are the core components the API reads and drives.
type Deps struct {
	Store  *store.Store
	Meta   *meta.Registry
	Zones  *zones.Engine
	Ingest *ingest.Coordinator
	Stats  *ingest.Stats
	Units  *units.Engine
	Notify *notify.Center

	// UnitStore, when set, receives unit-default edits.
	UnitStore UnitStore

	// Auth wraps every mutating route. Nil means no authentication.
	Auth func(http.Handler) http.Handler

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	d      Deps
	router chi.Router
}

// New creates a Handler over d and registers all routes.
func New(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Auth == nil {
		d.Auth = func(next http.Handler) http.Handler { return next }
	}
	h := &Handler{d: d}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/paths", h.listPaths)
		r.Get("/paths/{path}", h.getPath)
		r.Get("/metadata", h.listMetadata)
		r.Get("/metadata/{path}", h.getMetadata)
		r.Get("/zones/{path}", h.getZones)
		r.Get("/severity", h.severities)
		r.Get("/severity/{path}", h.severity)
		r.Get("/alerts", h.alerts)
		r.Get("/units", h.unitGroups)
		r.Get("/units/base", h.baseUnits)
		r.Get("/units/defaults", h.unitDefaults)
		r.Get("/units/groups/{measure}", h.groupsFor)
		r.Get("/units/convert", h.convert)
		r.Get("/stats", h.stats)
		r.Get("/notifications", h.notifications)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth)
			r.Patch("/metadata/{path}", h.editMetadata)
			r.Put("/zones/{path}", h.setZones)
			r.Delete("/zones/{path}", h.deleteZones)
			r.Put("/units/defaults", h.setUnitDefaults)
			r.Post("/notifications/{id}/dismiss", h.dismiss)
			r.Post("/updates", h.ingestUpdates)
			r.Post("/metadata", h.ingestMetadata)
			r.Post("/reset", h.reset)
		})
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- read routes ------------------------------------------------------------

// health returns GET /api/v1/health: path count, worst severity and rates.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		PathCount:     h.d.Store.Len(),
		WorstSeverity: types.SeverityNormal,
	}
	for _, s := range h.d.Zones.Severities() {
		if s.Alerting() {
			resp.AlertingCount++
		}
		if s > resp.WorstSeverity {
			resp.WorstSeverity = s
		}
	}
	for _, a := range h.d.Zones.Active() {
		if a.State == zones.StateFiring {
			resp.ActiveAlerts++
		}
	}
	if h.d.Stats != nil {
		snap := h.d.Stats.Snapshot()
		resp.UpdatesTotal = snap.Total
		if n := len(snap.Seconds); n > 0 {
			resp.UpdatesPerSec = snap.Seconds[n-1]
		}
	}
	resp.Notifications = len(h.d.Notify.List(false))

	switch {
	case resp.PathCount == 0:
		resp.State = "unknown"
	case resp.AlertingCount > 0:
		resp.State = "alerting"
	default:
		resp.State = "ok"
	}
	jsonResp(w, http.StatusOK, resp)
}

// listPaths returns GET /api/v1/paths[?type=number&self=true].
func (h *Handler) listPaths(w http.ResponseWriter, r *http.Request) {
	f, err := storeFilter(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	out := make([]PathSummary, 0)
	for p := range h.d.Store.ListPaths(f) {
		rec, ok := h.d.Store.Get(p)
		if !ok {
			continue // reset mid-iteration
		}
		ps := PathSummary{
			Path:          p,
			Type:          rec.ValueType,
			DefaultSource: rec.DefaultSourceID,
			SourceCount:   len(rec.Sources),
			Severity:      h.d.Zones.Severity(p),
		}
		if sv, ok := rec.Default(); ok {
			ps.Value = sv.Value
			ps.Timestamp = sv.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, ps)
	}
	jsonResp(w, http.StatusOK, out)
}

// getPath returns GET /api/v1/paths/{path}: record, metadata, display
// value and diagnostics; 404 if unknown.
func (h *Handler) getPath(w http.ResponseWriter, r *http.Request) {
	p := param(r, "path")
	rec, ok := h.d.Store.Get(p)
	if !ok {
		jsonErr(w, http.StatusNotFound, "path not found")
		return
	}
	md, _ := h.d.Meta.Get(p)
	sev := h.d.Zones.Severity(p)

	resp := PathResponse{
		Record:   rec,
		Metadata: md,
		Severity: sev,
		Diagnostics: computeDiagnostics(pathState{
			rec: rec, md: md, severity: sev, now: h.d.Now(),
		}),
	}
	if md != nil && md.Units != nil {
		resp.Display = h.display(*md.Units, rec)
	}
	jsonResp(w, http.StatusOK, resp)
}

// display converts the default value into the group's preferred measure.
func (h *Handler) display(measure string, rec *types.PathRecord) *DisplayValue {
	sv, ok := rec.Default()
	if !ok {
		return nil
	}
	g, ok := units.GroupOf(measure)
	if !ok {
		return nil
	}
	def, _ := h.d.Units.DefaultFor(g.Name)
	res, err := units.Convert(def, sv.Value)
	if err != nil {
		return nil
	}
	return &DisplayValue{Measure: def, Value: res}
}

// listMetadata returns GET /api/v1/metadata[?type=&self=].
func (h *Handler) listMetadata(w http.ResponseWriter, r *http.Request) {
	sf, err := storeFilter(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	out := make([]*types.MetadataRecord, 0)
	for rec := range h.d.Meta.List(meta.Filter{ValueType: sf.ValueType, SelfOnly: sf.SelfOnly}) {
		out = append(out, rec)
	}
	jsonResp(w, http.StatusOK, out)
}

// getMetadata returns GET /api/v1/metadata/{path}; 404 if unknown.
func (h *Handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.d.Meta.Get(param(r, "path"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "metadata not found")
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// getZones returns GET /api/v1/zones/{path}; an empty list when none.
func (h *Handler) getZones(w http.ResponseWriter, r *http.Request) {
	p := param(r, "path")
	zs := h.d.Meta.Zones(p)
	if zs == nil {
		zs = []types.ZoneDef{}
	}
	jsonResp(w, http.StatusOK, ZonesResponse{Path: p, Zones: zs, Persisted: true})
}

// severities returns GET /api/v1/severity: every evaluated path.
func (h *Handler) severities(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.d.Zones.Severities())
}

// severity returns GET /api/v1/severity/{path}.
func (h *Handler) severity(w http.ResponseWriter, r *http.Request) {
	p := param(r, "path")
	jsonResp(w, http.StatusOK, map[string]any{"path": p, "severity": h.d.Zones.Severity(p)})
}

// alerts returns GET /api/v1/alerts: firing and recently resolved.
func (h *Handler) alerts(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.d.Zones.Active())
}

// unitGroups returns GET /api/v1/units: the conversion catalogue.
func (h *Handler) unitGroups(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, units.Groups())
}

// baseUnits returns GET /api/v1/units/base: canonical unit descriptions.
func (h *Handler) baseUnits(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, units.BaseUnits())
}

// unitDefaults returns GET /api/v1/units/defaults.
func (h *Handler) unitDefaults(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.d.Units.Defaults())
}

// groupsFor returns GET /api/v1/units/groups/{measure}.
func (h *Handler) groupsFor(w http.ResponseWriter, r *http.Request) {
	def, gs := h.d.Units.GroupsFor(param(r, "measure"))
	jsonResp(w, http.StatusOK, GroupsResponse{Default: def, Groups: gs})
}

// convert returns GET /api/v1/units/convert?measure=&value=[&to_base=true].
func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	measure := q.Get("measure")
	v, err := strconv.ParseFloat(q.Get("value"), 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "value must be a number")
		return
	}
	toBase := q.Get("to_base") == "true"

	resp := ConvertResponse{Measure: measure, Input: v, ToBase: toBase}
	if toBase {
		var f float64
		f, err = units.ToBase(measure, v)
		resp.Result = units.Result{Number: f}
	} else {
		resp.Result, err = units.Convert(measure, types.Number(v))
	}
	if err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, units.ErrUnknownUnit) {
			code = http.StatusNotFound
		}
		jsonErr(w, code, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// stats returns GET /api/v1/stats: JSON, or Prometheus text with
// ?format=prometheus.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if h.d.Stats == nil {
		jsonErr(w, http.StatusNotFound, "stats disabled")
		return
	}
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if err := h.d.Stats.WriteText(w); err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	jsonResp(w, http.StatusOK, h.d.Stats.Snapshot())
}

// notifications returns GET /api/v1/notifications[?all=true].
func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	out := h.d.Notify.List(r.URL.Query().Get("all") == "true")
	if out == nil {
		out = []notify.Notification{}
	}
	jsonResp(w, http.StatusOK, out)
}

// --- mutating routes --------------------------------------------------------

// editMetadata handles PATCH /api/v1/metadata/{path}.
func (h *Handler) editMetadata(w http.ResponseWriter, r *http.Request) {
	p := param(r, "path")
	var partial types.MetadataRecord
	if !decodeBody(w, r, &partial) {
		return
	}
	h.d.Meta.EditMetadata(p, &partial)
	rec, _ := h.d.Meta.Get(p)
	jsonResp(w, http.StatusOK, rec)
}

// setZones handles PUT /api/v1/zones/{path} with a JSON array of zones.
func (h *Handler) setZones(w http.ResponseWriter, r *http.Request) {
	p := param(r, "path")
	var zs []types.ZoneDef
	if !decodeBody(w, r, &zs) {
		return
	}
	resp := ZonesResponse{Path: p, Persisted: true}
	if err := h.d.Meta.SetZones(p, zs); err != nil {
		resp.Persisted = false
		resp.Error = err.Error()
	}
	resp.Zones = h.d.Meta.Zones(p)
	h.reevaluate(p)
	jsonResp(w, http.StatusOK, resp)
}

// deleteZones handles DELETE /api/v1/zones/{path}; 404 if no record.
func (h *Handler) deleteZones(w http.ResponseWriter, r *http.Request) {
	p := param(r, "path")
	existed, err := h.d.Meta.DeleteZones(p)
	if !existed {
		jsonErr(w, http.StatusNotFound, "metadata not found")
		return
	}
	resp := ZonesResponse{Path: p, Zones: []types.ZoneDef{}, Persisted: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	h.reevaluate(p)
	jsonResp(w, http.StatusOK, resp)
}

// reevaluate applies edited zones to the current value right away.
func (h *Handler) reevaluate(path string) {
	rec, ok := h.d.Store.Get(path)
	if !ok {
		return
	}
	if sv, ok := rec.Default(); ok {
		h.d.Zones.Evaluate(path, sv.Value)
	}
}

// setUnitDefaults handles PUT /api/v1/units/defaults.
func (h *Handler) setUnitDefaults(w http.ResponseWriter, r *http.Request) {
	var m map[string]string
	if !decodeBody(w, r, &m) {
		return
	}
	if err := h.d.Units.SetDefaults(m); err != nil {
		// Valid entries were applied; report the rest.
		jsonResp(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"defaults": h.d.Units.Defaults(),
		})
		return
	}
	if h.d.UnitStore != nil {
		if err := h.d.UnitStore.SaveUnitDefaults(h.d.Units.Defaults()); err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	jsonResp(w, http.StatusOK, h.d.Units.Defaults())
}

// dismiss handles POST /api/v1/notifications/{id}/dismiss.
func (h *Handler) dismiss(w http.ResponseWriter, r *http.Request) {
	if !h.d.Notify.Dismiss(param(r, "id")) {
		jsonErr(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ingestUpdates handles POST /api/v1/updates with one update or an array.
// Invalid entries are reported per item; the response is 400 only when
// every entry failed.
func (h *Handler) ingestUpdates(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	var batch []types.Update
	if err := decodeOneOrMany(raw, &batch); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid update: "+err.Error())
		return
	}

	out := make([]UpdateResult, 0, len(batch))
	failed := 0
	for _, u := range batch {
		res := UpdateResult{Path: u.Path}
		o, err := h.d.Ingest.IngestValue(u)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.NewPath, res.Stale = o.IsNewPath, o.Stale
		}
		out = append(out, res)
	}
	code := http.StatusOK
	if failed > 0 && failed == len(batch) {
		code = http.StatusBadRequest
	}
	jsonResp(w, code, out)
}

// ingestMetadata handles POST /api/v1/metadata with one delta or an array.
func (h *Handler) ingestMetadata(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	var batch []MetadataDelta
	if err := decodeOneOrMany(raw, &batch); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid metadata: "+err.Error())
		return
	}
	for _, d := range batch {
		if err := h.d.Ingest.IngestMetadata(d.Path, d.Meta); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// reset handles POST /api/v1/reset: clears values and severities.
func (h *Handler) reset(w http.ResponseWriter, _ *http.Request) {
	h.d.Ingest.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// param returns the unescaped URL parameter name. chi matches on the raw
// path, so "m%2Fs" arrives escaped.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// decodeBody reads a bounded JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "body too large")
		} else {
			jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		}
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// decodeOneOrMany accepts a JSON object or an array of them.
func decodeOneOrMany[T any](raw json.RawMessage, out *[]T) error {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(raw, out)
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*out = []T{one}
	return nil
}

// storeFilter parses ?type= and ?self= into a store.Filter.
func storeFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{ValueType: types.ValueType(q.Get("type"))}
	if f.ValueType != "" && !f.ValueType.Valid() {
		return f, errors.New("unknown type " + strconv.Quote(string(f.ValueType)))
	}
	if s := q.Get("self"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return f, errors.New("self must be a boolean")
		}
		f.SelfOnly = b
	}
	return f, nil
}
