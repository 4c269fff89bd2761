package compose

import (
	"fmt"
	"strings"
)

// BodyData carries the observable and orbital properties handed to the model.
type BodyData struct {
	Name              string         `json:"name"`
	ID                string         `json:"id"`
	SpectralType      string         `json:"spectral_type,omitempty"`
	Albedo            *float64       `json:"albedo,omitempty"`
	AbsoluteMagnitude *float64       `json:"absolute_magnitude,omitempty"`
	EstimatedDiameter *float64       `json:"estimated_diameter_km,omitempty"`
	OrbitalPeriodDays *float64       `json:"orbital_period_days,omitempty"`
	SemiMajorAxisAU   *float64       `json:"semi_major_axis_au,omitempty"`
	Eccentricity      *float64       `json:"eccentricity,omitempty"`
	InclinationDeg    *float64       `json:"inclination_deg,omitempty"`
	AdditionalData    map[string]any `json:"additional_data,omitempty"`
}

// systemPrompt frames the model as a planetary scientist. Spectral type is
// the primary composition indicator when present.
const systemPrompt = `You are an expert planetary scientist with deep knowledge of:
- Asteroid spectral classification (C, S, M, X-type asteroids and subtypes)
- Mineralogical composition analysis
- Photometric properties and their implications
- Orbital dynamics and asteroid families
- Meteorite analogs and composition
- Space weathering effects
- Asteroid formation and evolution

Provide scientifically accurate, detailed analysis based on the available data.
When spectral type is available, use it as the primary indicator for composition.
Explain your reasoning and cite relevant asteroid families or well-studied examples when applicable.
Be specific about confidence levels and acknowledge uncertainties where appropriate.`

// buildPrompt assembles the user prompt from whichever fields are populated.
func buildPrompt(b BodyData) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are an expert planetary scientist specializing in asteroid composition analysis.

Analyze the following asteroid data and provide a detailed composition estimate:

Asteroid Name: %s
Asteroid ID: %s
`, b.Name, b.ID)

	if b.SpectralType != "" {
		fmt.Fprintf(&sb, "Spectral Type: %s\n", b.SpectralType)
	}
	if b.Albedo != nil {
		fmt.Fprintf(&sb, "Albedo: %g\n", *b.Albedo)
	}
	if b.AbsoluteMagnitude != nil {
		fmt.Fprintf(&sb, "Absolute Magnitude (H): %g\n", *b.AbsoluteMagnitude)
	}
	if b.EstimatedDiameter != nil {
		fmt.Fprintf(&sb, "Estimated Diameter: %g km\n", *b.EstimatedDiameter)
	}
	if b.OrbitalPeriodDays != nil {
		fmt.Fprintf(&sb, "Orbital Period: %g days\n", *b.OrbitalPeriodDays)
	}
	if b.SemiMajorAxisAU != nil {
		fmt.Fprintf(&sb, "Semi-major Axis: %g AU\n", *b.SemiMajorAxisAU)
	}
	if b.Eccentricity != nil {
		fmt.Fprintf(&sb, "Eccentricity: %g\n", *b.Eccentricity)
	}
	if b.InclinationDeg != nil {
		fmt.Fprintf(&sb, "Inclination: %g deg\n", *b.InclinationDeg)
	}

	if len(b.AdditionalData) > 0 {
		sb.WriteString("\nAdditional Data:\n")
		for key, value := range b.AdditionalData {
			fmt.Fprintf(&sb, "  %s: %v\n", key, value)
		}
	}

	sb.WriteString(`
Based on this data, provide:
1. **Primary Composition**: What minerals and materials are most likely present
2. **Spectral Class Analysis**: Detailed interpretation of the spectral type (if provided)
3. **Surface Characteristics**: Expected surface features and properties
4. **Formation History**: Likely formation environment and evolution
5. **Comparison**: How this asteroid compares to known asteroid families
6. **Scientific Value**: Potential research or resource value

Format your response in clear sections with detailed explanations based on current planetary science knowledge.
`)

	return sb.String()
}
