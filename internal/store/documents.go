package store

import (
	"time"

	"github.com/stintworks/stintflow/internal/strategy"
	"github.com/stintworks/stintflow/internal/tires"
)

// positionKeys maps wheel positions to the short document keys used under
// tire_data.
var positionKeys = map[tires.Position]string{
	tires.FrontLeft:  "fl",
	tires.FrontRight: "fr",
	tires.RearLeft:   "rl",
	tires.RearRight:  "rr",
}

type wheelDocument struct {
	Wear     float64 `bson:"wear"`
	Flat     bool    `bson:"flat"`
	Detached bool    `bson:"detached"`
	Compound string  `bson:"compound"`
}

type wheelPairDocument struct {
	Incoming wheelDocument `bson:"incoming"`
	Outgoing wheelDocument `bson:"outgoing"`
}

type tireDataDocument struct {
	FL           wheelPairDocument `bson:"fl"`
	FR           wheelPairDocument `bson:"fr"`
	RL           wheelPairDocument `bson:"rl"`
	RR           wheelPairDocument `bson:"rr"`
	TiresChanged map[string]bool   `bson:"tires_changed"`
}

type stintDocument struct {
	ID          string           `bson:"_id"`
	SessionID   string           `bson:"session_id"`
	Driver      string           `bson:"driver"`
	PitEndTime  string           `bson:"pit_end_time"`
	Bucket      string           `bson:"pit_end_time_bucket"`
	StintKey    string           `bson:"stint_key"`
	Official    bool             `bson:"official"`
	Excluded    bool             `bson:"excluded"`
	TireData    tireDataDocument `bson:"tire_data"`
	Fingerprint string           `bson:"fingerprint"`
	CreatedAt   time.Time        `bson:"created_at"`
}

type agentDocument struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	ConnectedAt   time.Time `bson:"connected_at"`
	LastHeartbeat time.Time `bson:"last_heartbeat"`
}

// eventDocument is a race definition. Length and StartTime are HH:MM:SS.
type eventDocument struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Tires     int    `bson:"tires"`
	Length    string `bson:"length"`
	StartTime string `bson:"start_time"`
}

type sessionDocument struct {
	ID     string `bson:"_id"`
	RaceID string `bson:"race_id"`
	Name   string `bson:"name"`
}

type teamDocument struct {
	ID      string   `bson:"_id"`
	Name    string   `bson:"name"`
	Drivers []string `bson:"drivers"`
}

type rowDocument struct {
	StintType        string `bson:"stint_type"`
	Driver           string `bson:"driver"`
	Status           string `bson:"status"`
	PitEndTime       string `bson:"pit_end_time"`
	TiresChanged     int    `bson:"tires_changed"`
	TiresLeft        int    `bson:"tires_left"`
	StintTimeSeconds int    `bson:"stint_time_seconds"`
}

type modelDataDocument struct {
	Rows  []rowDocument      `bson:"rows"`
	Tires []tireDataDocument `bson:"tires"`
}

type strategyDocument struct {
	ID                  string            `bson:"_id"`
	SessionID           string            `bson:"session_id"`
	Name                string            `bson:"name"`
	ModelData           modelDataDocument `bson:"model_data"`
	MeanStintTime       int               `bson:"mean_stint_time_seconds"`
	LockCompletedStints bool              `bson:"lock_completed_stints"`
	UpdatedAt           time.Time         `bson:"updated_at"`
}

// Stint is an observed pit-out as recorded by a tracker.
type Stint struct {
	SessionID  string
	Driver     string
	PitEndTime string
	Incoming   tires.Snapshot
	Outgoing   tires.Snapshot
}

// Agent is a live tracker registration.
type Agent struct {
	Name          string
	ConnectedAt   time.Time
	LastHeartbeat time.Time
}

// Race is an event definition used to seed projections.
type Race struct {
	ID        string
	Name      string
	Tires     int
	Length    string
	StartTime string
}

// Session is one running of a race.
type Session struct {
	ID     string
	RaceID string
	Name   string
}

// Team groups the drivers entered for an event.
type Team struct {
	ID      string
	Name    string
	Drivers []string
}

// Strategy is a saved projection.
type Strategy struct {
	ID                  string
	SessionID           string
	Name                string
	Rows                []strategy.TableRow
	Tires               []tires.Snapshot
	MeanStintTimeSecs   int
	LockCompletedStints bool
}

func wheelToDocument(w tires.WheelRecord) wheelDocument {
	return wheelDocument{
		Wear:     w.Wear,
		Flat:     w.Flat,
		Detached: w.Detached,
		Compound: string(w.Compound),
	}
}

func wheelFromDocument(d wheelDocument, changed bool) tires.WheelRecord {
	c, err := tires.ParseCompound(d.Compound)
	if err != nil {
		c = tires.Unknown
	}
	return tires.WheelRecord{
		Compound: c,
		Wear:     d.Wear,
		Flat:     d.Flat,
		Detached: d.Detached,
		Changed:  changed,
	}
}

func tireDataToDocument(incoming, outgoing tires.Snapshot) tireDataDocument {
	doc := tireDataDocument{TiresChanged: make(map[string]bool, 4)}
	pairs := map[tires.Position]*wheelPairDocument{
		tires.FrontLeft:  &doc.FL,
		tires.FrontRight: &doc.FR,
		tires.RearLeft:   &doc.RL,
		tires.RearRight:  &doc.RR,
	}
	for pos, pair := range pairs {
		pair.Incoming = wheelToDocument(incoming.At(pos))
		pair.Outgoing = wheelToDocument(outgoing.At(pos))
		doc.TiresChanged[positionKeys[pos]] = outgoing.At(pos).Changed
	}
	return doc
}

func (d tireDataDocument) pair(pos tires.Position) wheelPairDocument {
	switch pos {
	case tires.FrontLeft:
		return d.FL
	case tires.FrontRight:
		return d.FR
	case tires.RearLeft:
		return d.RL
	default:
		return d.RR
	}
}

func (d tireDataDocument) outgoingSnapshot() tires.Snapshot {
	var s tires.Snapshot
	for _, pos := range tires.Positions {
		s.Set(pos, wheelFromDocument(d.pair(pos).Outgoing, d.TiresChanged[positionKeys[pos]]))
	}
	return s
}

func (d stintDocument) toCompleted() strategy.CompletedStint {
	return strategy.CompletedStint{
		ID:         d.ID,
		Driver:     d.Driver,
		PitEndTime: d.PitEndTime,
		Bucket:     d.Bucket,
		Excluded:   d.Excluded,
		Outgoing:   d.TireData.outgoingSnapshot(),
	}
}

func (d agentDocument) toAgent() Agent {
	return Agent{Name: d.Name, ConnectedAt: d.ConnectedAt, LastHeartbeat: d.LastHeartbeat}
}

func (d eventDocument) toRace() Race {
	return Race{ID: d.ID, Name: d.Name, Tires: d.Tires, Length: d.Length, StartTime: d.StartTime}
}

func (d sessionDocument) toSession() Session {
	return Session{ID: d.ID, RaceID: d.RaceID, Name: d.Name}
}

func (d teamDocument) toTeam() Team {
	return Team{ID: d.ID, Name: d.Name, Drivers: append([]string(nil), d.Drivers...)}
}

func rowToDocument(r strategy.TableRow) rowDocument {
	return rowDocument{
		StintType:        r.StintType,
		Driver:           r.Driver,
		Status:           string(r.Status),
		PitEndTime:       r.PitEndTime,
		TiresChanged:     r.TiresChanged,
		TiresLeft:        r.TiresLeft,
		StintTimeSeconds: r.StintTimeSeconds,
	}
}

func (d rowDocument) toRow() strategy.TableRow {
	return strategy.TableRow{
		StintType:        d.StintType,
		Driver:           d.Driver,
		Status:           strategy.Status(d.Status),
		PitEndTime:       d.PitEndTime,
		TiresChanged:     d.TiresChanged,
		TiresLeft:        d.TiresLeft,
		StintTimeSeconds: d.StintTimeSeconds,
	}
}

func fromStrategy(s Strategy) strategyDocument {
	doc := strategyDocument{
		ID:                  s.ID,
		SessionID:           s.SessionID,
		Name:                s.Name,
		MeanStintTime:       s.MeanStintTimeSecs,
		LockCompletedStints: s.LockCompletedStints,
	}
	for _, r := range s.Rows {
		doc.ModelData.Rows = append(doc.ModelData.Rows, rowToDocument(r))
	}
	for _, t := range s.Tires {
		doc.ModelData.Tires = append(doc.ModelData.Tires, tireDataToDocument(tires.Snapshot{}, t))
	}
	return doc
}

func (d strategyDocument) toStrategy() Strategy {
	s := Strategy{
		ID:                  d.ID,
		SessionID:           d.SessionID,
		Name:                d.Name,
		MeanStintTimeSecs:   d.MeanStintTime,
		LockCompletedStints: d.LockCompletedStints,
	}
	for _, r := range d.ModelData.Rows {
		s.Rows = append(s.Rows, r.toRow())
	}
	for _, t := range d.ModelData.Tires {
		s.Tires = append(s.Tires, t.outgoingSnapshot())
	}
	return s
}
