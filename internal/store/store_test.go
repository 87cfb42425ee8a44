package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stintworks/stintflow/internal/tires"
)

func newTestClient(t *testing.T) (*Client, *fakeStintsCollection, *fakeAgentsCollection, *fakeStrategiesCollection) {
	t.Helper()
	stints := newFakeStintsCollection()
	agents := newFakeAgentsCollection()
	strategies := newFakeStrategiesCollection()
	c := newClientWithCollections(collections{
		stints:     stints,
		agents:     agents,
		events:     stubCollection{},
		sessions:   stubCollection{},
		teams:      stubCollection{},
		strategies: strategies,
	}, time.Second, DefaultBucketWindow)
	return c, stints, agents, strategies
}

func outgoingFullMedium() tires.Snapshot {
	var s tires.Snapshot
	for _, p := range tires.Positions {
		s.Set(p, tires.WheelRecord{Compound: tires.Medium, Wear: 1, Changed: true})
	}
	return s
}

func incomingAll(c tires.Compound) tires.Snapshot {
	var s tires.Snapshot
	for _, p := range tires.Positions {
		s.Set(p, tires.WheelRecord{Compound: c, Wear: 0.3})
	}
	return s
}

func TestEnsureIndexes(t *testing.T) {
	c, stints, agents, strategies := newTestClient(t)
	require.NoError(t, c.EnsureIndexes(context.Background()))
	require.Equal(t, 2, stints.indexCreated)
	require.Equal(t, 2, agents.indexCreated)
	require.Equal(t, 1, strategies.indexCreated)
}

func TestUpsertStintInsertThenDedup(t *testing.T) {
	c, stints, _, _ := newTestClient(t)

	first, err := c.UpsertStint(context.Background(), Stint{
		SessionID:  "sess-1",
		Driver:     "driver-a",
		PitEndTime: "01:00:00",
		Incoming:   incomingAll(tires.Unknown),
		Outgoing:   outgoingFullMedium(),
	})
	require.NoError(t, err)
	require.True(t, first.Inserted)
	require.NotEmpty(t, first.ID)

	// A second agent saw the same pit-out one second later and got a real
	// compound from the garage UI.
	second, err := c.UpsertStint(context.Background(), Stint{
		SessionID:  "sess-1",
		Driver:     "driver-a",
		PitEndTime: "01:00:01",
		Incoming:   incomingAll(tires.Wet),
		Outgoing:   incomingAll(tires.Wet), // different outgoing must not win
	})
	require.NoError(t, err)
	require.False(t, second.Inserted)
	require.Equal(t, first.ID, second.ID)

	doc := stints.byID(first.ID)
	require.Equal(t, "sess-1:01:00:00", doc.StintKey)
	require.Equal(t, "01:00:00", doc.PitEndTime, "observed time of the winning insert is preserved")
	require.Equal(t, string(tires.Wet), doc.TireData.FL.Incoming.Compound, "unknown incoming compound enriched")
	require.Equal(t, string(tires.Medium), doc.TireData.FL.Outgoing.Compound, "outgoing never overwritten on dedup")
	require.True(t, doc.TireData.TiresChanged["fl"])
}

func TestUpsertStintUnknownNeverOverwrites(t *testing.T) {
	c, stints, _, _ := newTestClient(t)

	first, err := c.UpsertStint(context.Background(), Stint{
		SessionID:  "sess-1",
		PitEndTime: "02:00:00",
		Incoming:   incomingAll(tires.Medium),
		Outgoing:   outgoingFullMedium(),
	})
	require.NoError(t, err)

	_, err = c.UpsertStint(context.Background(), Stint{
		SessionID:  "sess-1",
		PitEndTime: "02:00:00",
		Incoming:   incomingAll(tires.Unknown),
		Outgoing:   outgoingFullMedium(),
	})
	require.NoError(t, err)
	doc := stints.byID(first.ID)
	require.Equal(t, string(tires.Medium), doc.TireData.RR.Incoming.Compound)
}

func TestUpsertStintInvalidSession(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	_, err := c.UpsertStint(context.Background(), Stint{PitEndTime: "01:00:00"})
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestLatestBucket(t *testing.T) {
	c, _, _, _ := newTestClient(t)

	_, err := c.LatestBucket(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrNotFound)

	for _, ts := range []string{"01:00:00", "03:30:00", "02:15:00"} {
		_, err := c.UpsertStint(context.Background(), Stint{
			SessionID: "sess-1", PitEndTime: ts, Outgoing: outgoingFullMedium(),
		})
		require.NoError(t, err)
	}
	bucket, err := c.LatestBucket(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "03:30:00", bucket)
}

func TestListCompletedDescendingOrder(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	for _, ts := range []string{"21:00:00", "23:00:00", "22:00:00"} {
		_, err := c.UpsertStint(context.Background(), Stint{
			SessionID: "sess-1", Driver: "d", PitEndTime: ts, Outgoing: outgoingFullMedium(),
		})
		require.NoError(t, err)
	}
	out, err := c.ListCompleted(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "23:00:00", out[0].Bucket)
	require.Equal(t, "22:00:00", out[1].Bucket)
	require.Equal(t, "21:00:00", out[2].Bucket)
	require.True(t, out[0].Outgoing.FrontLeft.Changed)
}

func TestSetExcludedAndDelete(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	res, err := c.UpsertStint(context.Background(), Stint{
		SessionID: "sess-1", PitEndTime: "04:00:00", Outgoing: outgoingFullMedium(),
	})
	require.NoError(t, err)

	require.NoError(t, c.SetStintExcluded(context.Background(), res.ID, true))
	out, err := c.ListCompleted(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, out[0].Excluded)

	require.ErrorIs(t, c.SetStintExcluded(context.Background(), "missing", true), ErrNotFound)

	require.NoError(t, c.DeleteStint(context.Background(), res.ID))
	require.ErrorIs(t, c.DeleteStint(context.Background(), res.ID), ErrNotFound)
}

func TestRegisterAgentConflict(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	now := time.Now().UTC()
	require.NoError(t, c.RegisterAgent(context.Background(), "pit-wall", now))
	err := c.RegisterAgent(context.Background(), "pit-wall", now)
	require.ErrorIs(t, err, ErrNameConflict)
}

func TestHeartbeatAndCleanup(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	now := time.Now().UTC()
	require.NoError(t, c.RegisterAgent(context.Background(), "stale", now.Add(-61*time.Second)))
	require.NoError(t, c.RegisterAgent(context.Background(), "fresh", now.Add(-59*time.Second)))

	removed, err := c.CleanupAgents(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "fresh", agents[0].Name)

	beat := now.Add(time.Second)
	require.NoError(t, c.Heartbeat(context.Background(), "fresh", beat))
	agents, err = c.ListAgents(context.Background())
	require.NoError(t, err)
	require.True(t, agents[0].LastHeartbeat.Equal(beat))

	require.ErrorIs(t, c.Heartbeat(context.Background(), "gone", now), ErrNotFound)
}

func TestUnregisterAgent(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	now := time.Now().UTC()
	require.NoError(t, c.RegisterAgent(context.Background(), "pit-wall", now))
	require.NoError(t, c.UnregisterAgent(context.Background(), "pit-wall"))
	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Empty(t, agents)
	// Unregistering an absent agent is best-effort and not an error.
	require.NoError(t, c.UnregisterAgent(context.Background(), "pit-wall"))
}

func TestSaveAndLoadStrategy(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	id, err := c.SaveStrategy(context.Background(), Strategy{
		SessionID:         "sess-1",
		Name:              "plan-a",
		MeanStintTimeSecs: 3600,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := c.LoadStrategy(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "plan-a", loaded.Name)
	require.Equal(t, 3600, loaded.MeanStintTimeSecs)

	loaded.MeanStintTimeSecs = 4000
	again, err := c.SaveStrategy(context.Background(), loaded)
	require.NoError(t, err)
	require.Equal(t, id, again)

	list, err := c.ListStrategies(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 4000, list[0].MeanStintTimeSecs)

	require.NoError(t, c.DeleteStrategy(context.Background(), id))
	_, err = c.LoadStrategy(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFingerprintStable(t *testing.T) {
	a := stintFingerprint("sess-1", "01:00:00", "driver")
	b := stintFingerprint("sess-1", "01:00:00", "driver")
	require.Equal(t, a, b)
	require.Len(t, a, 16)
	require.NotEqual(t, a, stintFingerprint("sess-2", "01:00:00", "driver"))
}

// ---- fakes ----

func duplicateKeyError() error {
	return mongodriver.WriteException{WriteErrors: mongodriver.WriteErrors{{Code: 11000}}}
}

type stubCollection struct{}

func (stubCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return fakeSingleResult{err: mongodriver.ErrNoDocuments}
}

func (stubCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	return newFakeCursor(nil), nil
}

func (stubCollection) InsertOne(ctx context.Context, document any,
	opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return &mongodriver.InsertOneResult{}, nil
}

func (stubCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return &mongodriver.UpdateResult{}, nil
}

func (stubCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	return &mongodriver.DeleteResult{}, nil
}

func (stubCollection) DeleteMany(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	return &mongodriver.DeleteResult{}, nil
}

func (stubCollection) Indexes() indexView {
	return fakeIndexView{parent: new(int)}
}

type fakeIndexView struct {
	parent *int
}

func (v fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	*v.parent++
	return "idx", nil
}

type fakeSingleResult struct {
	doc any
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	switch typed := val.(type) {
	case *stintDocument:
		*typed = *(r.doc.(*stintDocument))
	case *agentDocument:
		*typed = *(r.doc.(*agentDocument))
	case *strategyDocument:
		*typed = *(r.doc.(*strategyDocument))
	default:
		return context.Canceled
	}
	return nil
}

type fakeCursor struct {
	docs []any
	idx  int
}

func newFakeCursor(docs []any) *fakeCursor {
	return &fakeCursor{docs: docs, idx: -1}
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }
func (c *fakeCursor) Err() error                      { return nil }

func (c *fakeCursor) Next(ctx context.Context) bool {
	c.idx++
	return c.idx < len(c.docs)
}

func (c *fakeCursor) Decode(val any) error {
	return fakeSingleResult{doc: c.docs[c.idx]}.Decode(val)
}

type fakeStintsCollection struct {
	stubCollection
	mu           sync.Mutex
	indexCreated int
	docs         []stintDocument
}

func newFakeStintsCollection() *fakeStintsCollection {
	return &fakeStintsCollection{}
}

func (c *fakeStintsCollection) byID(id string) stintDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.docs {
		if d.ID == id {
			return d
		}
	}
	return stintDocument{}
}

func (c *fakeStintsCollection) match(filter bson.M, d stintDocument) bool {
	if id, ok := filter["_id"].(string); ok && d.ID != id {
		return false
	}
	if key, ok := filter["stint_key"].(string); ok && d.StintKey != key {
		return false
	}
	if sess, ok := filter["session_id"].(string); ok && d.SessionID != sess {
		return false
	}
	if official, ok := filter["official"].(bool); ok && d.Official != official {
		return false
	}
	return true
}

func (c *fakeStintsCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := filter.(bson.M)
	var found *stintDocument
	for i := range c.docs {
		if !c.match(f, c.docs[i]) {
			continue
		}
		// The only sorted FindOne the client issues is the descending
		// latest-bucket lookup.
		if found == nil || (len(opts) > 0 && opts[0].Sort != nil && c.docs[i].Bucket > found.Bucket) {
			found = &c.docs[i]
		}
	}
	if found == nil {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	copyDoc := *found
	return fakeSingleResult{doc: &copyDoc}
}

func (c *fakeStintsCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := filter.(bson.M)
	var matched []stintDocument
	for _, d := range c.docs {
		if c.match(f, d) {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Bucket > matched[j].Bucket })
	docs := make([]any, len(matched))
	for i := range matched {
		copyDoc := matched[i]
		docs[i] = &copyDoc
	}
	return newFakeCursor(docs), nil
}

func (c *fakeStintsCollection) InsertOne(ctx context.Context, document any,
	opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := document.(stintDocument)
	for _, d := range c.docs {
		if d.StintKey == doc.StintKey && d.Official == doc.Official {
			return nil, duplicateKeyError()
		}
	}
	c.docs = append(c.docs, doc)
	return &mongodriver.InsertOneResult{InsertedID: doc.ID}, nil
}

func (c *fakeStintsCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := filter.(bson.M)
	set := update.(bson.M)["$set"].(bson.M)
	for i := range c.docs {
		if !c.match(f, c.docs[i]) {
			continue
		}
		applyStintSet(&c.docs[i], set)
		return &mongodriver.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return &mongodriver.UpdateResult{}, nil
}

func applyStintSet(d *stintDocument, set bson.M) {
	compounds := map[string]*wheelPairDocument{
		"fl": &d.TireData.FL,
		"fr": &d.TireData.FR,
		"rl": &d.TireData.RL,
		"rr": &d.TireData.RR,
	}
	for k, v := range set {
		if k == "excluded" {
			d.Excluded = v.(bool)
			continue
		}
		for pos, pair := range compounds {
			if k == "tire_data."+pos+".incoming.compound" {
				pair.Incoming.Compound = v.(string)
			}
		}
	}
}

func (c *fakeStintsCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := filter.(bson.M)
	for i := range c.docs {
		if c.match(f, c.docs[i]) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return &mongodriver.DeleteResult{DeletedCount: 1}, nil
		}
	}
	return &mongodriver.DeleteResult{}, nil
}

func (c *fakeStintsCollection) Indexes() indexView {
	return fakeIndexView{parent: &c.indexCreated}
}

type fakeAgentsCollection struct {
	stubCollection
	mu           sync.Mutex
	indexCreated int
	docs         []agentDocument
}

func newFakeAgentsCollection() *fakeAgentsCollection {
	return &fakeAgentsCollection{}
}

func (c *fakeAgentsCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]any, len(c.docs))
	for i := range c.docs {
		copyDoc := c.docs[i]
		docs[i] = &copyDoc
	}
	return newFakeCursor(docs), nil
}

func (c *fakeAgentsCollection) InsertOne(ctx context.Context, document any,
	opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := document.(agentDocument)
	for _, d := range c.docs {
		if d.Name == doc.Name {
			return nil, duplicateKeyError()
		}
	}
	c.docs = append(c.docs, doc)
	return &mongodriver.InsertOneResult{InsertedID: doc.ID}, nil
}

func (c *fakeAgentsCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := filter.(bson.M)["name"].(string)
	set := update.(bson.M)["$set"].(bson.M)
	for i := range c.docs {
		if c.docs[i].Name != name {
			continue
		}
		if ts, ok := set["last_heartbeat"].(time.Time); ok {
			c.docs[i].LastHeartbeat = ts
		}
		return &mongodriver.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return &mongodriver.UpdateResult{}, nil
}

func (c *fakeAgentsCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := filter.(bson.M)["name"].(string)
	for i := range c.docs {
		if c.docs[i].Name == name {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return &mongodriver.DeleteResult{DeletedCount: 1}, nil
		}
	}
	return &mongodriver.DeleteResult{}, nil
}

func (c *fakeAgentsCollection) DeleteMany(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := filter.(bson.M)["last_heartbeat"].(bson.M)["$lt"].(time.Time)
	var kept []agentDocument
	var removed int64
	for _, d := range c.docs {
		if d.LastHeartbeat.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return &mongodriver.DeleteResult{DeletedCount: removed}, nil
}

func (c *fakeAgentsCollection) Indexes() indexView {
	return fakeIndexView{parent: &c.indexCreated}
}

type fakeStrategiesCollection struct {
	stubCollection
	mu           sync.Mutex
	indexCreated int
	docs         map[string]strategyDocument
}

func newFakeStrategiesCollection() *fakeStrategiesCollection {
	return &fakeStrategiesCollection{docs: make(map[string]strategyDocument)}
}

func (c *fakeStrategiesCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := filter.(bson.M)["_id"].(string)
	doc, ok := c.docs[id]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	copyDoc := doc
	return fakeSingleResult{doc: &copyDoc}
}

func (c *fakeStrategiesCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID, _ := filter.(bson.M)["session_id"].(string)
	var docs []any
	for _, d := range c.docs {
		if d.SessionID == sessionID {
			copyDoc := d
			docs = append(docs, &copyDoc)
		}
	}
	return newFakeCursor(docs), nil
}

func (c *fakeStrategiesCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := filter.(bson.M)["_id"].(string)
	set := update.(bson.M)["$set"].(bson.M)
	doc, ok := c.docs[id]
	doc.ID = id
	if v, ok := set["session_id"].(string); ok {
		doc.SessionID = v
	}
	if v, ok := set["name"].(string); ok {
		doc.Name = v
	}
	if v, ok := set["model_data"].(modelDataDocument); ok {
		doc.ModelData = v
	}
	if v, ok := set["mean_stint_time_seconds"].(int); ok {
		doc.MeanStintTime = v
	}
	if v, ok := set["lock_completed_stints"].(bool); ok {
		doc.LockCompletedStints = v
	}
	if v, ok := set["updated_at"].(time.Time); ok {
		doc.UpdatedAt = v
	}
	c.docs[id] = doc
	res := &mongodriver.UpdateResult{MatchedCount: 1, ModifiedCount: 1}
	if !ok {
		res.MatchedCount = 0
		res.UpsertedCount = 1
		res.UpsertedID = id
	}
	return res, nil
}

func (c *fakeStrategiesCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := filter.(bson.M)["_id"].(string)
	if _, ok := c.docs[id]; !ok {
		return &mongodriver.DeleteResult{}, nil
	}
	delete(c.docs, id)
	return &mongodriver.DeleteResult{DeletedCount: 1}, nil
}

func (c *fakeStrategiesCollection) Indexes() indexView {
	return fakeIndexView{parent: &c.indexCreated}
}
