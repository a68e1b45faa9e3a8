package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/groupware/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configure the archive bucket. An empty endpoint uses AWS.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Prefix       string
}

// S3Archive stores every event as a JSON document in an S3 compatible bucket.
type S3Archive struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archive(ctx context.Context, opts S3Options) (*S3Archive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 archive: load config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{client: client, bucket: opts.Bucket, prefix: opts.Prefix, now: time.Now}, nil
}

// Key returns the object key of e: prefix/context/yyyy/mm/dd/id.json.
func (a *S3Archive) Key(e *Event) string {
	d := e.OccurredAt
	return fmt.Sprintf("%s%d/%04d/%02d/%02d/%s.json", a.prefix, e.ContextID, d.Year(), d.Month(), d.Day(), e.ID)
}

func (a *S3Archive) put(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("s3 archive: encode event: %w", err)
	}
	key := a.Key(e)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 archive: put %s: %w", key, err)
	}
	return nil
}

func (a *S3Archive) Create(ctx context.Context, id models.Identity, obj *models.Object) error {
	return a.put(ctx, NewEvent(ActionCreate, id, nil, obj, a.now()))
}

func (a *S3Archive) Modify(ctx context.Context, id models.Identity, before, after *models.Object) error {
	return a.put(ctx, NewEvent(ActionModify, id, before, after, a.now()))
}

func (a *S3Archive) Delete(ctx context.Context, id models.Identity, obj *models.Object) error {
	return a.put(ctx, NewEvent(ActionDelete, id, obj, nil, a.now()))
}
