package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// GetRace loads a race definition.
func (c *Client) GetRace(ctx context.Context, id string) (Race, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc eventDocument
	if err := c.events.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Race{}, ErrNotFound
		}
		return Race{}, err
	}
	return doc.toRace(), nil
}

// ListRaces returns all race definitions.
func (c *Client) ListRaces(ctx context.Context) ([]Race, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.events.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []Race
	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRace())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession loads one session of a race.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := c.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return doc.toSession(), nil
}

// ListSessions returns the sessions of a race, or all sessions when raceID
// is empty.
func (c *Client) ListSessions(ctx context.Context, raceID string) ([]Session, error) {
	filter := bson.M{}
	if raceID != "" {
		filter["race_id"] = raceID
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.sessions.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []Session
	for cur.Next(ctx) {
		var doc sessionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toSession())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTeams returns the team entries with their driver rosters.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.teams.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []Team
	for cur.Next(ctx) {
		var doc teamDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toTeam())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
