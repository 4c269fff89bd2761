package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aster/astergo/internal/approach"
	"github.com/aster/astergo/internal/elements"
	"github.com/aster/astergo/internal/kepler"
	"github.com/aster/astergo/internal/market"
)

// Request budgets. Path sampling and approach scans are CPU-bound, so both
// are capped and rejected up front rather than queued.
const (
	maxPathSamples        = 3600
	maxScanBodies         = 200
	maxScanSamplesPerBody = 20000
)

// bodySummary is the list-view representation of a body.
type bodySummary struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	SpectralType      string  `json:"spectral_type,omitempty"`
	AbsoluteMagnitude float64 `json:"absolute_magnitude,omitempty"`
	Albedo            float64 `json:"albedo,omitempty"`
	DiameterKm        float64 `json:"diameter_km,omitempty"`
}

// bodyDetail adds the orbital elements to the summary.
type bodyDetail struct {
	bodySummary
	Elements elementsPayload `json:"elements"`
}

type elementsPayload struct {
	SemiMajorAxisAU    float64  `json:"semi_major_axis_au"`
	Eccentricity       float64  `json:"eccentricity"`
	InclinationDeg     float64  `json:"inclination_deg"`
	AscendingNodeDeg   float64  `json:"ascending_node_deg"`
	ArgOfPerihelionDeg float64  `json:"arg_of_perihelion_deg"`
	MeanAnomalyDeg     float64  `json:"mean_anomaly_deg"`
	EpochJD            *float64 `json:"epoch_jd,omitempty"`
	PeriodDays         float64  `json:"period_days"`
}

func summarize(b elements.Body) bodySummary {
	return bodySummary{
		ID:                b.ID,
		Name:              b.Name,
		SpectralType:      b.SpectralType,
		AbsoluteMagnitude: b.AbsoluteMagnitude,
		Albedo:            b.Albedo,
		DiameterKm:        b.DiameterKm,
	}
}

func detail(b elements.Body) bodyDetail {
	return bodyDetail{
		bodySummary: summarize(b),
		Elements: elementsPayload{
			SemiMajorAxisAU:    b.Elements.SemiMajorAxis,
			Eccentricity:       b.Elements.Eccentricity,
			InclinationDeg:     b.Elements.Inclination,
			AscendingNodeDeg:   b.Elements.AscendingNode,
			ArgOfPerihelionDeg: b.Elements.ArgOfPerihelion,
			MeanAnomalyDeg:     b.Elements.MeanAnomaly,
			EpochJD:            b.Elements.Epoch,
			PeriodDays:         kepler.Period(b.Elements.SemiMajorAxis),
		},
	}
}

// handleListBodies serves GET /api/v1/bodies?q=<name filter>&limit=<n>.
func (s *Server) handleListBodies(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Get()
	if ds == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}

	q := strings.ToLower(r.URL.Query().Get("q"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}

	out := make([]bodySummary, 0, len(ds.Bodies))
	for _, b := range ds.Bodies {
		if q != "" && !strings.Contains(strings.ToLower(b.Name), q) && !strings.Contains(b.ID, q) {
			continue
		}
		out = append(out, summarize(b))
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	writeJSON(w, map[string]any{
		"count":  len(out),
		"bodies": out,
	})
}

// handleGetBody serves GET /api/v1/bodies/{id}.
func (s *Server) handleGetBody(w http.ResponseWriter, r *http.Request) {
	b, ok := s.findBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, detail(b))
}

// handlePosition serves GET /api/v1/bodies/{id}/position?t=<RFC3339>|jd=<float>.
// With no time parameter the position at the stored mean anomaly is returned,
// which works for epochless bodies too. With t or jd, bodies without an epoch
// cannot be placed and yield 422.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	b, ok := s.findBody(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("jd") == "" && r.URL.Query().Get("t") == "" {
		p := kepler.Position(b.Elements)
		writeJSON(w, map[string]any{
			"id":        b.ID,
			"frame":     "HELIO_ECLIPTIC",
			"position":  p,
			"radius_au": p.Radius(),
		})
		return
	}

	jd, ok := parseTargetJD(w, r)
	if !ok {
		return
	}

	p, err := kepler.PositionAt(b.Elements, jd)
	if err != nil {
		if errors.Is(err, kepler.ErrNoEpoch) {
			writeJSONError(w, http.StatusUnprocessableEntity, "body has no epoch; time propagation unavailable")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]any{
		"id":        b.ID,
		"t":         kepler.JDTime(jd).Format(time.RFC3339),
		"jd":        jd,
		"frame":     "HELIO_ECLIPTIC",
		"position":  p,
		"radius_au": p.Radius(),
	})
}

// handlePath serves GET /api/v1/bodies/{id}/path?samples=<n>.
// The orbit loop is time-independent, so no epoch is required.
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	b, ok := s.findBody(w, r)
	if !ok {
		return
	}

	samples := kepler.DefaultPathSamples
	if v := r.URL.Query().Get("samples"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 8 {
			writeJSONError(w, http.StatusBadRequest, "invalid samples parameter, must be >= 8")
			return
		}
		if n > maxPathSamples {
			writeJSONStatus(w, http.StatusBadRequest, map[string]any{
				"error":       "samples exceeds budget",
				"max_samples": maxPathSamples,
			})
			return
		}
		samples = n
	}

	path := kepler.Path(b.Elements, samples)
	writeJSON(w, map[string]any{
		"id":      b.ID,
		"samples": samples,
		"frame":   "HELIO_ECLIPTIC",
		"path":    path,
	})
}

// handleValue serves GET /api/v1/bodies/{id}/value.
func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	b, ok := s.findBody(w, r)
	if !ok {
		return
	}

	est, err := market.Valuate(b.SpectralType, b.DiameterKm)
	if err != nil {
		if errors.Is(err, market.ErrNoDiameter) {
			writeJSONError(w, http.StatusUnprocessableEntity, "body has no diameter estimate")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]any{
		"id":        b.ID,
		"name":      b.Name,
		"valuation": est,
	})
}

// handleBodyApproaches serves GET /api/v1/bodies/{id}/approaches, the
// single-body form of the approach scan.
func (s *Server) handleBodyApproaches(w http.ResponseWriter, r *http.Request) {
	b, ok := s.findBody(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	horizonDays := 365.0
	stepHours := 24.0
	maxDistanceLD := 100.0

	if v := q.Get("horizon_days"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid horizon_days parameter")
			return
		}
		horizonDays = f
	}
	if v := q.Get("step_hours"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid step_hours parameter")
			return
		}
		stepHours = f
	}
	if v := q.Get("max_distance_ld"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid max_distance_ld parameter")
			return
		}
		maxDistanceLD = f
	}

	if horizonDays*24/stepHours > maxScanSamplesPerBody {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{
			"error":                "horizon/step exceeds budget",
			"max_samples_per_body": maxScanSamplesPerBody,
		})
		return
	}

	start := time.Now().UTC()
	results := approach.Scan(r.Context(), approach.Request{
		Bodies:        []elements.Body{b},
		Start:         start,
		HorizonDays:   horizonDays,
		StepHours:     stepHours,
		MaxDistanceLD: maxDistanceLD,
		MaxApproaches: 10,
	})

	res := results[0]
	if res.Error != "" {
		writeJSONError(w, http.StatusUnprocessableEntity, res.Error)
		return
	}

	writeJSON(w, map[string]any{
		"id":              b.ID,
		"start":           start.Format(time.RFC3339),
		"horizon_days":    horizonDays,
		"step_hours":      stepHours,
		"max_distance_ld": maxDistanceLD,
		"approaches":      res.Approaches,
	})
}

// approachRequest is the POST /api/v1/approaches body.
type approachRequest struct {
	IDs           []string `json:"ids,omitempty"`
	Start         string   `json:"start,omitempty"`
	HorizonDays   float64  `json:"horizon_days,omitempty"`
	StepHours     float64  `json:"step_hours,omitempty"`
	MaxDistanceLD float64  `json:"max_distance_ld,omitempty"`
	MaxApproaches int      `json:"max_approaches,omitempty"`
}

// handleApproaches serves POST /api/v1/approaches.
func (s *Server) handleApproaches(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Get()
	if ds == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}

	var req approachRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && err != io.EOF {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now().UTC()
	if req.Start != "" {
		t, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid start, want RFC3339")
			return
		}
		start = t.UTC()
	}
	if req.HorizonDays <= 0 {
		req.HorizonDays = 365
	}
	if req.StepHours <= 0 {
		req.StepHours = 24
	}
	if req.MaxDistanceLD <= 0 {
		req.MaxDistanceLD = 100
	}
	if req.MaxApproaches <= 0 {
		req.MaxApproaches = 10
	}

	// Resolve target bodies.
	var bodies []elements.Body
	var unknown []string
	if len(req.IDs) > 0 {
		for _, id := range req.IDs {
			if b, ok := s.store.Find(id); ok {
				bodies = append(bodies, b)
			} else {
				unknown = append(unknown, id)
			}
		}
	} else {
		bodies = ds.Bodies
	}

	// Enforce scan budgets.
	if len(bodies) > maxScanBodies {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{
			"error":      "too many bodies for one scan",
			"max_bodies": maxScanBodies,
		})
		return
	}
	samplesPerBody := req.HorizonDays * 24 / req.StepHours
	if samplesPerBody > maxScanSamplesPerBody {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{
			"error":                "horizon/step exceeds budget",
			"max_samples_per_body": maxScanSamplesPerBody,
		})
		return
	}

	results := approach.Scan(r.Context(), approach.Request{
		Bodies:        bodies,
		Start:         start,
		HorizonDays:   req.HorizonDays,
		StepHours:     req.StepHours,
		MaxDistanceLD: req.MaxDistanceLD,
		MaxApproaches: req.MaxApproaches,
	})

	for _, id := range unknown {
		results = append(results, approach.BodyApproaches{ID: id, Error: "unknown body id"})
	}

	writeJSON(w, map[string]any{
		"start":           start.Format(time.RFC3339),
		"horizon_days":    req.HorizonDays,
		"step_hours":      req.StepHours,
		"max_distance_ld": req.MaxDistanceLD,
		"results":         results,
	})
}

// handleDatasetMetadata serves GET /api/v1/dataset/metadata.
func (s *Server) handleDatasetMetadata(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Get()
	if ds == nil {
		writeJSONStatus(w, http.StatusOK, map[string]any{
			"loaded":        false,
			"fetch_enabled": s.datasetCfg.EnableFetch,
		})
		return
	}

	writeJSON(w, map[string]any{
		"loaded":        true,
		"source":        ds.Source,
		"fetched_at":    ds.FetchedAt.UTC().Format(time.RFC3339),
		"age_seconds":   s.store.AgeSeconds(),
		"body_count":    len(ds.Bodies),
		"fetch_enabled": s.datasetCfg.EnableFetch,
	})
}

// handleDatasetRefresh serves POST /api/v1/dataset/refresh.
func (s *Server) handleDatasetRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.datasetCfg.EnableFetch || s.refresh == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "dataset fetch is disabled")
		return
	}

	count, err := s.refresh(r.Context())
	if err != nil {
		s.logger.Error("dataset refresh failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "dataset refresh failed")
		return
	}

	writeJSON(w, map[string]any{
		"refreshed":  true,
		"body_count": count,
	})
}

// handleCacheStats serves GET /api/v1/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.kfCache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "keyframe cache not running")
		return
	}

	st := s.kfCache.Stats()
	writeJSON(w, map[string]any{
		"entries":         st.Entries,
		"size_bytes":      st.SizeBytes,
		"oldest":          formatMaybeZero(st.OldestTimestamp),
		"newest":          formatMaybeZero(st.NewestTimestamp),
		"hits":            st.Hits,
		"misses":          st.Misses,
		"evictions":       st.Evictions,
		"in_grace_period": st.InGracePeriod,
	})
}

// findBody resolves {id} against the store, writing the error response on
// failure.
func (s *Server) findBody(w http.ResponseWriter, r *http.Request) (elements.Body, bool) {
	if s.store.Get() == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no dataset loaded")
		return elements.Body{}, false
	}

	b, ok := s.store.Find(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown body id")
		return elements.Body{}, false
	}
	return b, true
}

// parseTargetJD resolves the t/jd query parameters to a Julian Date. jd takes
// precedence when both are present. Caller guarantees at least one is set.
func parseTargetJD(w http.ResponseWriter, r *http.Request) (float64, bool) {
	if v := r.URL.Query().Get("jd"); v != "" {
		jd, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid jd parameter")
			return 0, false
		}
		return jd, true
	}

	t, err := time.Parse(time.RFC3339, r.URL.Query().Get("t"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid t parameter, want RFC3339")
		return 0, false
	}
	return kepler.JD(t), true
}

func formatMaybeZero(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}
