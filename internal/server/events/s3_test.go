package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, b)
	return &s3.PutObjectOutput{}, nil
}

func stubAWS(t *testing.T, putter *fakePutter) *s3.Options {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		return aws.Config{Region: lo.Region}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		for _, fn := range optFns {
			fn(&opts)
		}
		return putter
	}
	return &opts
}

func TestNewS3Archive_AppliesEndpoint(t *testing.T) {
	opts := stubAWS(t, &fakePutter{})

	_, err := NewS3Archive(context.Background(), S3Options{Region: "us-east-1", Bucket: "events", BaseEndpoint: "http://127.0.0.1:9000"})
	require.NoError(t, err)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Archive_Errors(t *testing.T) {
	stubAWS(t, &fakePutter{})

	_, err := NewS3Archive(context.Background(), S3Options{})
	require.Error(t, err)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}
	_, err = NewS3Archive(context.Background(), S3Options{Bucket: "events"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestS3Archive_PutsJSONDocument(t *testing.T) {
	putter := &fakePutter{}
	stubAWS(t, putter)

	a, err := NewS3Archive(context.Background(), S3Options{Bucket: "events", Prefix: "archive/"})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	before, after := contact(), contact()
	after.Set(models.FieldSurname, "King")
	require.NoError(t, a.Modify(context.Background(), caller, before, after))

	require.Len(t, putter.inputs, 1)
	in := putter.inputs[0]
	assert.Equal(t, "events", aws.ToString(in.Bucket))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	assert.Regexp(t, `^archive/1/2024/03/01/[0-9a-f-]{36}\.json$`, aws.ToString(in.Key))

	var e Event
	require.NoError(t, json.Unmarshal(putter.bodies[0], &e))
	assert.Equal(t, ActionModify, e.Action)
	assert.Equal(t, 100, e.ObjectID)
	assert.Equal(t, "Lovelace", e.Before.Values[models.FieldSurname])
	assert.Equal(t, "King", e.After.Values[models.FieldSurname])
}

func TestS3Archive_PutError(t *testing.T) {
	stubAWS(t, &fakePutter{err: errors.New("denied")})

	a, err := NewS3Archive(context.Background(), S3Options{Bucket: "events"})
	require.NoError(t, err)

	err = a.Create(context.Background(), caller, contact())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	require.Error(t, a.Delete(context.Background(), caller, contact()))
}
