package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
)

// Config configures the S3-compatible store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// Archive implements ports.TripArchive on MinIO / S3.
type Archive struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a client. It does not contact the server.
func New(cfg Config) (*Archive, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage endpoint, access key and secret key are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket when missing.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", a.bucket, err)
	}
	slog.Info("created trip archive bucket", "bucket", a.bucket)
	return nil
}

// Archive writes the trip as a GeoJSON FeatureCollection and returns its object key.
func (a *Archive) Archive(ctx context.Context, trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) (string, error) {
	ctx, span := otel.Tracer("destialarm/objectstore").Start(ctx, telemetry.SpanArchive)
	defer span.End()

	data, err := BuildFeatureCollection(trip, route, track).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal trip geojson: %w", err)
	}

	key := ObjectKey(trip)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/geo+json"})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	span.SetAttributes(attribute.String("archive.key", key), attribute.Int("archive.bytes", len(data)))
	return key, nil
}

// Stat returns the stored size of key.
func (a *Archive) Stat(ctx context.Context, key string) (int64, error) {
	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Delete removes key.
func (a *Archive) Delete(ctx context.Context, key string) error {
	return a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{})
}

// Ping reports whether the bucket is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

// ObjectKey is trips/<yyyy>/<mm>/<destination id>.geojson, partitioned by start time.
func ObjectKey(trip *domain.Trip) string {
	t := trip.StartedAt.UTC()
	return fmt.Sprintf("trips/%04d/%02d/%s.geojson", t.Year(), int(t.Month()), trip.DestinationID)
}

// BuildFeatureCollection renders route, breadcrumb track and destination.
// Empty geometries are omitted.
func BuildFeatureCollection(trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	dest := geojson.NewFeature(geospatial.ToPoint(trip.Destination))
	dest.Properties["kind"] = "destination"
	dest.Properties["destination_id"] = trip.DestinationID
	dest.Properties["query"] = trip.Query
	if trip.Name != "" {
		dest.Properties["name"] = trip.Name
	}
	dest.Properties["started_at"] = trip.StartedAt.UTC()
	if trip.ArrivedAt != nil {
		dest.Properties["arrived_at"] = trip.ArrivedAt.UTC()
	}
	fc.Append(dest)

	if route != nil && len(route.Path.Coordinates) > 1 {
		f := geojson.NewFeature(geospatial.ToLineString(route.Path))
		f.Properties["kind"] = "route"
		f.Properties["distance_km"] = route.DistanceKm
		fc.Append(f)
	}

	if len(track) > 1 {
		ls := make(orb.LineString, 0, len(track))
		for _, p := range track {
			ls = append(ls, geospatial.ToPoint(p))
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = "track"
		f.Properties["samples"] = len(track)
		fc.Append(f)
	}
	return fc
}
