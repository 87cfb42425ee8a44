package tires

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"goa.design/clue/log"
)

// DefaultGarageURL is where the simulator's garage UI serves its REST API.
const DefaultGarageURL = "http://localhost:6397"

// garageTimeout bounds the compound lookup so a hung UI endpoint cannot
// stall the polling loop.
const garageTimeout = 2 * time.Second

// garageState is the subset of the garage UI payload we read.
type garageState struct {
	TireCompounds struct {
		FL int `json:"fl"`
		FR int `json:"fr"`
		RL int `json:"rl"`
		RR int `json:"rr"`
	} `json:"tireCompounds"`
}

// Extractor queries the garage UI for the compounds currently fitted. The
// UI is an optional companion process; when it is absent the extractor
// reports all wheels Unknown rather than failing the pit event.
type Extractor struct {
	BaseURL string
	Client  *http.Client
}

// NewExtractor returns an Extractor against the default garage UI address.
func NewExtractor() *Extractor {
	return &Extractor{
		BaseURL: DefaultGarageURL,
		Client:  &http.Client{Timeout: garageTimeout},
	}
}

// Compounds returns the compound fitted at each wheel position. On any
// transport or decode failure it logs a warning and returns all Unknown.
func (e *Extractor) Compounds(ctx context.Context) map[Position]Compound {
	out := map[Position]Compound{
		FrontLeft:  Unknown,
		FrontRight: Unknown,
		RearLeft:   Unknown,
		RearRight:  Unknown,
	}
	state, err := e.fetch(ctx)
	if err != nil {
		log.Printf(ctx, "garage UI unavailable, compounds unknown: %v", err)
		return out
	}
	out[FrontLeft] = compoundFromCode(state.TireCompounds.FL)
	out[FrontRight] = compoundFromCode(state.TireCompounds.FR)
	out[RearLeft] = compoundFromCode(state.TireCompounds.RL)
	out[RearRight] = compoundFromCode(state.TireCompounds.RR)
	return out
}

// Annotate fills a snapshot's compounds from the garage UI.
func (e *Extractor) Annotate(ctx context.Context, s *Snapshot) {
	compounds := e.Compounds(ctx)
	for _, p := range Positions {
		w := s.At(p)
		w.Compound = compounds[p]
		s.Set(p, w)
	}
}

func (e *Extractor) fetch(ctx context.Context) (*garageState, error) {
	ctx, cancel := context.WithTimeout(ctx, garageTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/garage/ui", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("garage UI returned %s", resp.Status)
	}
	var state garageState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode garage UI payload: %w", err)
	}
	return &state, nil
}
