// Package mongo archives every supervisor cycle as a MongoDB document.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/supervisor"
)

// Inserter is the part of *mongo.Collection the sink uses.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

var (
	_ Inserter        = (*mongo.Collection)(nil)
	_ supervisor.Sink = (*Sink)(nil)
)

// ChannelDoc is one channel inside a cycle document. Faulted values are stored as null.
type ChannelDoc struct {
	Index        int      `bson:"index"`
	Name         string   `bson:"name"`
	Target       float64  `bson:"target"`
	Band         float64  `bson:"band"`
	IntegralTime float64  `bson:"integral_time"`
	Faulted      bool     `bson:"faulted"`
	Temperature  *float64 `bson:"temperature"`
	Output       *float64 `bson:"output"`
	Proportional *float64 `bson:"proportional"`
	Integral     *float64 `bson:"integral"`
}

// CycleDoc is the stored form of a supervisor cycle.
type CycleDoc struct {
	Seq      int          `bson:"seq"`
	Time     time.Time    `bson:"time"`
	Elapsed  float64      `bson:"elapsed_s"`
	Pushed   bool         `bson:"pushed"`
	Channels []ChannelDoc `bson:"channels"`
	Sample   *float64     `bson:"sample,omitempty"`
}

// NewCycleDoc converts a cycle. History is not stored; every document is one point in time.
func NewCycleDoc(c supervisor.Cycle) CycleDoc {
	doc := CycleDoc{
		Seq:      c.Seq,
		Time:     c.Time.UTC(),
		Elapsed:  c.Elapsed.Seconds(),
		Pushed:   c.Pushed,
		Channels: make([]ChannelDoc, len(c.Channels)),
	}
	for i, ch := range c.Channels {
		doc.Channels[i] = ChannelDoc{
			Index:        ch.Index,
			Name:         ch.Name,
			Target:       ch.Target,
			Band:         ch.Band,
			IntegralTime: ch.IntegralTime,
			Faulted:      ch.Faulted,
			Temperature:  optional(ch.Temperature),
			Output:       optional(ch.Output),
			Proportional: optional(ch.Proportional),
			Integral:     optional(ch.Integral),
		}
	}
	if c.Sample != nil {
		doc.Sample = optional(c.Sample.Temperature)
	}
	return doc
}

func optional(t channel.Telemetry) *float64 {
	v, ok := t.Value()
	if !ok {
		return nil
	}
	return &v
}

// Sink inserts one document per cycle.
type Sink struct {
	coll    Inserter
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a sink writing to coll. Each insert is bounded by timeout.
func New(coll Inserter, timeout time.Duration, log zerolog.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{coll: coll, timeout: timeout, log: log}
}

// Publish stores c.
func (s *Sink) Publish(c supervisor.Cycle) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, NewCycleDoc(c))
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d: %w", c.Seq, err)
	}
	s.log.Debug().Int("cycle", c.Seq).Interface("id", res.InsertedID).Msg("cycle archived")
	return nil
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}
