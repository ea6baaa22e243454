// Package redissink appends records to a Redis stream.
//
// Every record becomes one stream entry whose fields are the mapped column
// names; NULL values are left out and a "version" field names the mapping
// revision. Consumers read the stream with XREAD or consumer groups and
// persist or forward the entries.
//
// Example usage:
//
//	s, err := redissink.New(ctx, cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	d := sink.NewDispatcher(s)
package redissink

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/redis/go-redis/v9"
)

// VersionField is the entry field carrying the record's mapping version.
const VersionField = "version"

// Sink writes records to one stream.
type Sink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*Sink, error) {
	if cfg.Stream == "" {
		return nil, errors.NewInvalidInput("redis.stream", "stream name is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		// the dispatcher owns retries
		MaxRetries: -1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewTemporary("failed to connect to Redis", err)
	}
	return NewFromClient(client, cfg.Stream, cfg.MaxLen), nil
}

// NewFromClient creates a sink over an existing client. maxLen trims the
// stream approximately to that many entries; 0 keeps everything.
func NewFromClient(client *redis.Client, stream string, maxLen int64) *Sink {
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

// Name implements sink.Named.
func (s *Sink) Name() string {
	return "redis"
}

// Stream returns the stream name.
func (s *Sink) Stream() string {
	return s.stream
}

// Append adds rec to the stream.
func (s *Sink) Append(ctx context.Context, rec record.Record) error {
	if err := s.client.XAdd(ctx, s.args(rec)).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

// AppendBatch adds recs in one MULTI/EXEC transaction.
func (s *Sink) AppendBatch(ctx context.Context, recs []record.Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range recs {
			pipe.XAdd(ctx, s.args(rec))
		}
		return nil
	})
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

// Check implements the health.Checker interface.
func (s *Sink) Check(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.NewTemporary("redis health check failed", err)
	}
	return nil
}

// Close closes the client.
func (s *Sink) Close() error {
	return s.client.Close()
}

func (s *Sink) args(rec record.Record) *redis.XAddArgs {
	values := make([]interface{}, 0, 2*len(rec.Values)+2)
	values = append(values, VersionField, rec.Version)
	for _, v := range rec.Values {
		if v.V == nil {
			continue
		}
		values = append(values, v.Column, record.FormatValue(v.V))
	}
	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: values,
	}
}

// retryableReplies are server replies that go away on their own.
var retryableReplies = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY", "OOM"}

func (s *Sink) wrap(err error) error {
	return errors.NewSinkError(classify(err), s.Name(), err)
}

// classify treats server error replies as schema mismatches (the key holds
// something other than a stream, or the command was rejected) unless the
// server is only temporarily unable to serve. Everything else failed on the
// way to the server.
func classify(err error) errors.SinkErrorKind {
	var netErr net.Error
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.EOF),
		errors.As(err, &netErr):
		return errors.ConnectionFailure
	}

	var reply redis.Error
	if !errors.As(err, &reply) {
		return errors.ConnectionFailure
	}
	for _, prefix := range retryableReplies {
		if strings.HasPrefix(reply.Error(), prefix) {
			return errors.ConnectionFailure
		}
	}
	return errors.SchemaMismatch
}
