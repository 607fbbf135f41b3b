// Package offsite mirrors backup archives to an S3-compatible bucket.
package offsite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/periodical/internal/model"
)

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key, e.g. "periodical/".
	Prefix string
}

// Store puts archives into the bucket under Prefix.
type Store struct {
	logger zerolog.Logger
	client *s3.Client
	bucket string
	prefix string
}

func NewStore(logger zerolog.Logger, cfg Config) *Store {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{
		logger: logger.With().Str("component", "offsite").Logger(),
		client: s3.New(s3.Options{
			BaseEndpoint:               aws.String(cfg.Endpoint),
			Region:                     region,
			Credentials:                credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			UsePathStyle:               true,
			RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		}),
		bucket: cfg.Bucket,
		prefix: prefix,
	}
}

func (s *Store) key(name string) string { return s.prefix + name }

// PutArchive uploads the archive at path as name.
func (s *Store) PutArchive(ctx context.Context, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive %s: %w", filepath.Base(path), err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("put offsite copy of %s: %w", name, err)
	}
	s.logger.Info().Str("bucket", s.bucket).Str("key", s.key(name)).Int64("size", info.Size()).Msg("archive copied offsite")
	return nil
}

// DeleteArchive removes the offsite copy of name. Missing objects are not an
// error.
func (s *Store) DeleteArchive(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("delete offsite copy of %s: %w", name, err)
	}
	return nil
}

// ListArchives returns the archives stored under Prefix.
func (s *Store) ListArchives(ctx context.Context) ([]model.BackupArchive, error) {
	var out []model.BackupArchive
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list offsite archives: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			a := model.BackupArchive{FileName: name, SizeBytes: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				a.ModifiedAt = *obj.LastModified
				a.CreatedAt = obj.LastModified.Format(model.ArchiveTimeLayout)
			}
			out = append(out, a)
		}
	}
	return out, nil
}
