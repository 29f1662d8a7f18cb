// Package gateway is the HTTP-adjacent orchestration layer: it dispatches
// account/bucket/object operations against internal/account,
// internal/bucket, and internal/object, attaching a log line (carrying the
// context's request ID) and a gatewaymetrics measurement to each
// account, bucket, and object CRUD call — the seam the (out of scope) HTTP
// front end calls into. ListBuckets and ListObjects are neither logged
// nor measured.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sheepgate/sheepgate/internal/account"
	"github.com/sheepgate/sheepgate/internal/bucket"
	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/gatewaymetrics"
	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/logger"
	"github.com/sheepgate/sheepgate/internal/object"
	"github.com/sheepgate/sheepgate/internal/sink"
	"github.com/sheepgate/sheepgate/internal/store"
)

// requestIDKey is the context key gateway handlers stamp a generated
// request ID under, for per-request log correlation.
type requestIDKey struct{}

// WithRequestID attaches a freshly generated request ID to ctx and
// returns the derived context, for callers (the HTTP front end) that
// want the same ID to appear in their own access log.
func WithRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, requestIDKey{}, id), id
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "-"
}

// ListConcurrency bounds the fan-out width of concurrent listing walks
// (§6: errgroup + semaphore over independent index-tree I/O).
const ListConcurrency = 8

// Gateway wires the account/bucket/object layers together against a
// shared backing store, clock, and metrics handle.
type Gateway struct {
	Account *account.Manager
	Bucket  *bucket.Manager
	Object  *object.Manager
	Metrics gatewaymetrics.Handle
}

// New builds a Gateway over s, stamping timestamps through clk and
// reporting measurements through metrics (pass gatewaymetrics.Noop{} to
// disable metrics, e.g. in tests).
func New(s store.ObjectStore, clk clock.Clock, metrics gatewaymetrics.Handle) *Gateway {
	if metrics == nil {
		metrics = gatewaymetrics.Noop{}
	}
	return &Gateway{
		Account: &account.Manager{Store: s, Clock: clk},
		Bucket:  &bucket.Manager{Store: s, Clock: clk},
		Object:  &object.Manager{Store: s, Clock: clk},
		Metrics: metrics,
	}
}

func (g *Gateway) record(ctx context.Context, op gatewaymetrics.Op, start time.Time, err error) {
	g.Metrics.OpCount(ctx, op, 1)
	g.Metrics.OpLatency(ctx, op, time.Since(start))
	if err != nil {
		g.Metrics.OpErrorCount(ctx, op, gwerrors.CodeOf(err).String())
		logger.Warnf(ctx, "request=%s op=%s failed: %v", requestID(ctx), op, err)
		return
	}
	logger.Debugf(ctx, "request=%s op=%s ok", requestID(ctx), op)
}

func (g *Gateway) CreateAccount(ctx context.Context, name string) (uint32, error) {
	start := time.Now()
	vid, err := g.Account.CreateAccount(ctx, name)
	g.record(ctx, gatewaymetrics.OpCreateAccount, start, err)
	return vid, err
}

func (g *Gateway) DeleteAccount(ctx context.Context, name string) error {
	start := time.Now()
	err := g.Account.DeleteAccount(ctx, name)
	g.record(ctx, gatewaymetrics.OpDeleteAccount, start, err)
	return err
}

func (g *Gateway) ReadAccount(ctx context.Context, name string) (account.Stats, error) {
	start := time.Now()
	stats, err := g.Account.ReadAccount(ctx, name)
	g.record(ctx, gatewaymetrics.OpReadAccount, start, err)
	return stats, err
}

func (g *Gateway) ListBuckets(ctx context.Context, account string, cb func(string) error) error {
	return g.Account.ListBucketsConcurrent(ctx, account, ListConcurrency, cb)
}

func (g *Gateway) CreateBucket(ctx context.Context, account, bucketName string) (bucket.Record, error) {
	start := time.Now()
	rec, err := g.Bucket.Create(ctx, account, bucketName)
	g.record(ctx, gatewaymetrics.OpCreateBucket, start, err)
	return rec, err
}

func (g *Gateway) LookupBucket(ctx context.Context, account, bucketName string) (bucket.Record, error) {
	start := time.Now()
	rec, err := g.Bucket.Lookup(ctx, account, bucketName)
	g.record(ctx, gatewaymetrics.OpLookupBucket, start, err)
	return rec, err
}

func (g *Gateway) DeleteBucket(ctx context.Context, account, bucketName string) error {
	start := time.Now()
	err := g.Bucket.Delete(ctx, account, bucketName)
	g.record(ctx, gatewaymetrics.OpDeleteBucket, start, err)
	return err
}

func (g *Gateway) PutObject(ctx context.Context, account, bucketName, key string, size int64, rs sink.RequestSink) error {
	start := time.Now()
	rec, err := g.Bucket.Lookup(ctx, account, bucketName)
	if err != nil {
		g.record(ctx, gatewaymetrics.OpCreateObject, start, err)
		return err
	}
	err = g.Object.Create(ctx, rec.OnodeVid, rec.DataVid, key, size, rs)
	g.record(ctx, gatewaymetrics.OpCreateObject, start, err)
	return err
}

func (g *Gateway) GetObject(ctx context.Context, account, bucketName, key string, rs sink.RequestSink) error {
	start := time.Now()
	rec, err := g.Bucket.Lookup(ctx, account, bucketName)
	if err != nil {
		g.record(ctx, gatewaymetrics.OpReadObject, start, err)
		return err
	}
	err = g.Object.Read(ctx, rec.OnodeVid, key, rs)
	g.record(ctx, gatewaymetrics.OpReadObject, start, err)
	return err
}

func (g *Gateway) UpdateObject(ctx context.Context, account, bucketName, key string, size int64, rs sink.RequestSink) error {
	start := time.Now()
	rec, err := g.Bucket.Lookup(ctx, account, bucketName)
	if err != nil {
		g.record(ctx, gatewaymetrics.OpUpdateObject, start, err)
		return err
	}
	err = g.Object.Update(ctx, rec.OnodeVid, rec.DataVid, key, size, rs)
	g.record(ctx, gatewaymetrics.OpUpdateObject, start, err)
	return err
}

func (g *Gateway) DeleteObject(ctx context.Context, account, bucketName, key string) error {
	start := time.Now()
	rec, err := g.Bucket.Lookup(ctx, account, bucketName)
	if err != nil {
		g.record(ctx, gatewaymetrics.OpDeleteObject, start, err)
		return err
	}
	err = g.Object.Delete(ctx, rec.OnodeVid, rec.DataVid, key)
	g.record(ctx, gatewaymetrics.OpDeleteObject, start, err)
	return err
}

func (g *Gateway) ListObjects(ctx context.Context, account, bucketName string, cb func(string) error) error {
	rec, err := g.Bucket.Lookup(ctx, account, bucketName)
	if err != nil {
		return err
	}
	return g.Object.ListObjectsConcurrent(ctx, rec.OnodeVid, ListConcurrency, cb)
}
