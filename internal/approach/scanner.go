// Package approach scans body/Earth range over a time horizon to find close
// approaches. It is a screening tool built on the same two-body propagation
// the rest of the service uses, not a high-precision encounter model.
package approach

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/aster/astergo/internal/elements"
	"github.com/aster/astergo/internal/kepler"
	"github.com/aster/astergo/internal/transform"
)

// Event is a single detected close approach.
type Event struct {
	Time       time.Time `json:"time"`
	JD         float64   `json:"jd"`
	DistanceAU float64   `json:"distance_au"`
	DistanceLD float64   `json:"distance_ld"`
}

// BodyApproaches holds the detected approaches for one body.
type BodyApproaches struct {
	ID         string  `json:"id"`
	Approaches []Event `json:"approaches"`
	Error      string  `json:"error,omitempty"`
}

// Request holds the parameters for an approach scan.
type Request struct {
	Bodies        []elements.Body
	Start         time.Time
	HorizonDays   float64
	StepHours     float64 // coarse scan step
	MaxDistanceLD float64 // report only minima under this range
	MaxApproaches int
}

// fineDivisions splits one coarse step during minimum refinement.
const fineDivisions = 64

// Scan computes close approaches for the given request. Each body is
// processed in its own goroutine, bounded by a semaphore.
func Scan(ctx context.Context, req Request) []BodyApproaches {
	results := make([]BodyApproaches, len(req.Bodies))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, body := range req.Bodies {
		wg.Add(1)
		go func(idx int, b elements.Body) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = BodyApproaches{ID: b.ID, Error: "cancelled"}
				return
			}

			events, err := scanBody(ctx, req, b)
			if err != nil {
				results[idx] = BodyApproaches{ID: b.ID, Error: err.Error()}
				return
			}
			results[idx] = BodyApproaches{ID: b.ID, Approaches: events}
		}(i, body)
	}

	wg.Wait()
	return results
}

// scanBody finds range minima for a single body. The coarse pass samples
// body/Earth range at StepHours intervals; any local minimum under the
// distance cutoff is refined within its bracketing interval.
func scanBody(ctx context.Context, req Request, body elements.Body) ([]Event, error) {
	if !body.Elements.HasEpoch() {
		return nil, kepler.ErrNoEpoch
	}

	startJD := kepler.JD(req.Start)
	endJD := startJD + req.HorizonDays
	step := req.StepHours / 24
	cutoffAU := req.MaxDistanceLD * transform.KmPerLD / transform.KmPerAU

	var events []Event

	prev, cur := rangeAt(body.Elements, startJD), rangeAt(body.Elements, startJD+step)
	for jd := startJD + 2*step; jd <= endJD; jd += step {
		if ctx.Err() != nil {
			return events, nil
		}
		if req.MaxApproaches > 0 && len(events) >= req.MaxApproaches {
			break
		}

		next := rangeAt(body.Elements, jd)
		if cur <= prev && cur <= next && cur < cutoffAU {
			minJD, minR := refineMinimum(body.Elements, jd-2*step, jd)
			events = append(events, Event{
				Time:       kepler.JDTime(minJD),
				JD:         minJD,
				DistanceAU: minR,
				DistanceLD: transform.AUToLD(minR),
			})
		}
		prev, cur = cur, next
	}

	return events, nil
}

// refineMinimum resamples the bracketing interval at a fine step and returns
// the minimum range found.
func refineMinimum(el elements.OrbitalElements, loJD, hiJD float64) (float64, float64) {
	step := (hiJD - loJD) / fineDivisions

	bestJD, bestR := loJD, rangeAt(el, loJD)
	for jd := loJD + step; jd <= hiJD; jd += step {
		if r := rangeAt(el, jd); r < bestR {
			bestJD, bestR = jd, r
		}
	}
	return bestJD, bestR
}

// rangeAt returns the body/Earth distance in AU at the given Julian Date.
// Caller guarantees el has an epoch.
func rangeAt(el elements.OrbitalElements, jd float64) float64 {
	p, _ := kepler.PositionAt(el, jd)
	return transform.Range(p, transform.EarthPosition(jd))
}
