// Package store persists stints, agents, race catalog entries and saved
// strategies in MongoDB. All cross-agent coordination happens through this
// package; the dedup design relies on per-operation atomicity only, never
// transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/stintworks/stintflow/internal/settings"
)

const (
	stintsCollection     = "stints"
	agentsCollection     = "agents"
	eventsCollection     = "events"
	sessionsCollection   = "sessions"
	teamsCollection      = "teams"
	strategiesCollection = "strategies"

	defaultOpTimeout = 5 * time.Second
	clientName       = "stintflow-mongo"
)

// DefaultBucketWindow is the dedup quantization in seconds. Two seconds
// absorbs sub-second observation skew between agents watching the same
// pit-out.
const DefaultBucketWindow = 2

var (
	// ErrNotFound is returned when a lookup matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidSession marks writes with an empty or malformed session id.
	// The tracker logs it and skips the write.
	ErrInvalidSession = errors.New("invalid session id")
	// ErrNameConflict is returned when an agent name is already registered.
	ErrNameConflict = errors.New("agent name already registered")
)

// Client exposes the document-store operations. It satisfies
// clue/health.Pinger so the tracker can report store liveness.
type Client struct {
	mongo        *mongodriver.Client
	stints       collection
	agents       collection
	events       collection
	sessions     collection
	teams        collection
	strategies   collection
	timeout      time.Duration
	bucketWindow int
}

// Options configures a Client.
type Options struct {
	Client       *mongodriver.Client
	Database     string
	Timeout      time.Duration
	BucketWindow int
}

// Connect dials MongoDB using the resolved settings and returns a ready
// Client with indexes ensured.
func Connect(ctx context.Context, cfg settings.MongoSettings) (*Client, error) {
	uri := cfg.URI
	if uri == "" {
		uri = "mongodb://" + cfg.Host
	}
	clientOpts := options.Client().ApplyURI(uri)
	if cfg.Username != "" {
		cred := options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		}
		clientOpts = clientOpts.SetAuth(cred)
	}
	dialCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	mc, err := mongodriver.Connect(dialCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", redactURI(uri), err)
	}
	if err := mc.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s: %w", redactURI(uri), err)
	}
	return New(ctx, Options{Client: mc, Database: cfg.Database})
}

// New wraps an established driver client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	db := opts.Client.Database(opts.Database)
	wrap := func(name string) collection {
		return mongoCollection{coll: db.Collection(name)}
	}
	c := newClientWithCollections(collections{
		stints:     wrap(stintsCollection),
		agents:     wrap(agentsCollection),
		events:     wrap(eventsCollection),
		sessions:   wrap(sessionsCollection),
		teams:      wrap(teamsCollection),
		strategies: wrap(strategiesCollection),
	}, opts.Timeout, opts.BucketWindow)
	c.mongo = opts.Client
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return c, nil
}

// collections bundles the per-collection handles for construction.
type collections struct {
	stints     collection
	agents     collection
	events     collection
	sessions   collection
	teams      collection
	strategies collection
}

func newClientWithCollections(colls collections, timeout time.Duration, bucketWindow int) *Client {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	if bucketWindow <= 0 {
		bucketWindow = DefaultBucketWindow
	}
	return &Client{
		stints:       colls.stints,
		agents:       colls.agents,
		events:       colls.events,
		sessions:     colls.sessions,
		teams:        colls.teams,
		strategies:   colls.strategies,
		timeout:      timeout,
		bucketWindow: bucketWindow,
	}
}

// Name identifies the client to the health check.
func (c *Client) Name() string { return clientName }

// Ping reports store liveness.
func (c *Client) Ping(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

// Close releases the underlying connection pool.
func (c *Client) Close(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	return c.mongo.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the dedup and registry semantics depend
// on. Creation is idempotent.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	stintKey := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "stint_key", Value: 1},
			{Key: "official", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.stints.Indexes().CreateOne(ctx, stintKey); err != nil {
		return err
	}
	stintSession := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "pit_end_time_bucket", Value: -1},
		},
	}
	if _, err := c.stints.Indexes().CreateOne(ctx, stintSession); err != nil {
		return err
	}
	agentName := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.agents.Indexes().CreateOne(ctx, agentName); err != nil {
		return err
	}
	agentHeartbeat := mongodriver.IndexModel{
		Keys: bson.D{{Key: "last_heartbeat", Value: 1}},
	}
	if _, err := c.agents.Indexes().CreateOne(ctx, agentHeartbeat); err != nil {
		return err
	}
	sessionRace := mongodriver.IndexModel{
		Keys: bson.D{{Key: "race_id", Value: 1}},
	}
	if _, err := c.sessions.Indexes().CreateOne(ctx, sessionRace); err != nil {
		return err
	}
	strategySession := mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}},
	}
	if _, err := c.strategies.Indexes().CreateOne(ctx, strategySession); err != nil {
		return err
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// redactURI strips credentials before a URI reaches logs or errors.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "mongodb://<unparseable>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}
