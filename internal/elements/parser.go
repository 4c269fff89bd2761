package elements

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Synonym tables for the six canonical elements plus epoch. Lookup is exact
// match, first hit in priority order wins. Short keys ("a", "w", "M") stay
// case-sensitive because case is what distinguishes Ω-family from ω-family
// keys in source records.
var (
	synSemiMajorAxis = []string{"a", "semi-major axis", "semi_major_axis"}
	synEccentricity  = []string{"e", "eccentricity"}
	synInclination   = []string{"i", "inclination"}
	synAscendingNode = []string{"om", "node", "Omega", "ascending_node_longitude"}
	synArgPerihelion = []string{"w", "peri", "omega", "perihelion_argument"}
	synMeanAnomaly   = []string{"ma", "M", "mean anomaly", "mean_anomaly"}
	synEpoch         = []string{"epoch", "epoch_osculation"}
)

// Defaults used when a record carries no value for an element: a circular,
// unit-radius, unperturbed orbit. Data quality is the caller's concern; the
// parser always hands back something renderable.
const (
	defaultSemiMajorAxis = 1.0
	defaultEccentricity  = 0.0
)

// ErrNotARecord is returned when the input is structurally unusable.
var ErrNotARecord = errors.New("elements: input is not a record")

// ParseRecord normalizes a loosely-typed orbital-element record into
// OrbitalElements. Values may be numbers or numeric strings; keys are looked
// up through the synonym tables. A missing element falls back to its default
// rather than failing. A missing epoch leaves Epoch nil, which disables time
// propagation downstream. The only failure mode is a nil record.
func ParseRecord(rec map[string]any) (OrbitalElements, error) {
	if rec == nil {
		return OrbitalElements{}, ErrNotARecord
	}

	el := OrbitalElements{
		SemiMajorAxis:   lookupFloat(rec, synSemiMajorAxis, defaultSemiMajorAxis),
		Eccentricity:    lookupFloat(rec, synEccentricity, defaultEccentricity),
		Inclination:     lookupFloat(rec, synInclination, 0),
		AscendingNode:   lookupFloat(rec, synAscendingNode, 0),
		ArgOfPerihelion: lookupFloat(rec, synArgPerihelion, 0),
		MeanAnomaly:     lookupFloat(rec, synMeanAnomaly, 0),
	}

	for _, key := range synEpoch {
		if v, ok := rec[key]; ok {
			if f, ok := coerceFloat(v); ok {
				el.Epoch = &f
				break
			}
		}
	}

	return el, nil
}

// lookupFloat returns the first synonym present in rec that coerces to a
// float, or def when none does.
func lookupFloat(rec map[string]any, synonyms []string, def float64) float64 {
	for _, key := range synonyms {
		if v, ok := rec[key]; ok {
			if f, ok := coerceFloat(v); ok {
				return f
			}
		}
	}
	return def
}

// coerceFloat converts the value shapes seen in small-body feeds: JSON
// numbers, Go numerics from prebuilt maps, and numeric strings.
func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// browseDocument mirrors the NeoWs-style browse response. orbital_data stays
// a raw map so ParseRecord's synonym handling applies uniformly.
type browseDocument struct {
	NearEarthObjects []browseObject `json:"near_earth_objects"`
}

type browseObject struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	AbsoluteMagnitude float64        `json:"absolute_magnitude_h"`
	SpectralType      string         `json:"spectral_type,omitempty"`
	Albedo            float64        `json:"albedo,omitempty"`
	EstimatedDiameter *diameterBlock `json:"estimated_diameter,omitempty"`
	OrbitalData       map[string]any `json:"orbital_data"`
}

type diameterBlock struct {
	Kilometers struct {
		Min float64 `json:"estimated_diameter_min"`
		Max float64 `json:"estimated_diameter_max"`
	} `json:"kilometers"`
}

// Parse reads a browse document from r and returns the parsed bodies.
// Malformed body entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Body, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc browseDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding body data: %w", err)
	}

	bodies := make([]Body, 0, len(doc.NearEarthObjects))
	for i, obj := range doc.NearEarthObjects {
		if obj.ID == "" {
			logger.Warn("skipping body entry without id", "index", i, "name", obj.Name)
			continue
		}

		el, err := ParseRecord(obj.OrbitalData)
		if err != nil {
			logger.Warn("skipping body with unusable orbital data", "id", obj.ID, "name", obj.Name, "error", err)
			continue
		}

		b := Body{
			ID:                obj.ID,
			Name:              obj.Name,
			SpectralType:      obj.SpectralType,
			AbsoluteMagnitude: obj.AbsoluteMagnitude,
			Albedo:            obj.Albedo,
			Elements:          el,
		}
		if d := obj.EstimatedDiameter; d != nil {
			b.DiameterKm = (d.Kilometers.Min + d.Kilometers.Max) / 2
		}

		bodies = append(bodies, b)
	}

	return bodies, nil
}
