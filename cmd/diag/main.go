package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aster/astergo/internal/approach"
	"github.com/aster/astergo/internal/elements"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	chunks, ts, err := elements.NewCache("/tmp/astergo/elements", 5).LoadLatest()
	if err != nil {
		fmt.Println("ERROR reading element cache:", err)
		os.Exit(1)
	}

	bodies := elements.ParseChunks(chunks, logger)
	fmt.Printf("Loaded %d bodies (cached %v)\n", len(bodies), ts.Format(time.RFC3339))
	if len(bodies) == 0 {
		os.Exit(1)
	}
	first := bodies[0]
	fmt.Printf("First body: %s (%s) a=%.3f AU e=%.3f\n",
		first.Name, first.ID, first.Elements.SemiMajorAxis, first.Elements.Eccentricity)

	subset := bodies
	if len(subset) > 5 {
		subset = subset[:5]
	}

	now := time.Now().UTC()
	fmt.Printf("Scan start: %v\n", now)

	req := approach.Request{
		Bodies:        subset,
		Start:         now,
		HorizonDays:   365,
		StepHours:     24,
		MaxDistanceLD: 200,
		MaxApproaches: 10,
	}

	results := approach.Scan(context.Background(), req)

	totalEvents := 0
	for _, body := range results {
		if body.Error != "" {
			fmt.Printf("  %s: ERROR %s\n", body.ID, body.Error)
		} else {
			fmt.Printf("  %s: %d approaches\n", body.ID, len(body.Approaches))
			totalEvents += len(body.Approaches)
			for j, ev := range body.Approaches {
				fmt.Printf("    approach %d: t=%v dist=%.2f LD\n",
					j, ev.Time.Format(time.RFC3339), ev.DistanceLD)
			}
		}
	}
	fmt.Printf("\nTotal approaches found: %d\n", totalEvents)
}
