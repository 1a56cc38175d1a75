// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/staranto/swcache/internal/cacheutil"
)

const (
	// markerName is written into every generation so empty generations are
	// still listed.
	markerName = ".generation"
	// maxDeleteBatch is the DeleteObjects limit.
	maxDeleteBatch = 1000
)

// S3API is the subset of the S3 client used by S3. *s3.Client satisfies it.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3 is a Storage kept in a bucket. Generation <name> lives under
// <prefix><name>/ and each entry is a JSON object named by the MD5 of its key.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 returns an S3 storage. A non-empty prefix is normalized to end in
// a slash.
func NewS3(client S3API, bucket, prefix string) (*S3, error) {
	if client == nil {
		return nil, errors.New("s3 client is nil")
	}
	if bucket == "" {
		return nil, errors.New("s3 bucket must not be empty")
	}
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3) genPrefix(name string) string {
	return s.prefix + cacheutil.EncodeName(name) + "/"
}

func (s *S3) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	c := &s3Cache{parent: s, name: name, prefix: s.genPrefix(name)}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(c.prefix + markerName),
		Body:        bytes.NewReader([]byte(name)),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	return c, nil
}

// Lookup lists the generation prefix instead of writing its marker.
func (s *S3) Lookup(ctx context.Context, name string) (Cache, bool, error) {
	ok, err := s.Has(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	return &s3Cache{parent: s, name: name, prefix: s.genPrefix(name)}, true, nil
}

func (s *S3) Has(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.genPrefix(name)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list cache %q: %w", name, err)
	}
	return len(out.Contents) > 0, nil
}

func (s *S3) Keys(ctx context.Context) ([]string, error) {
	names := []string{}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list caches: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			seg := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			name, err := cacheutil.DecodeName(seg)
			if err != nil || name == "" {
				log.Debugf("skipping unrecognized cache prefix %s", aws.ToString(cp.Prefix))
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3) Delete(ctx context.Context, name string) (bool, error) {
	keys, err := s.objectKeys(ctx, s.genPrefix(name))
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return false, fmt.Errorf("failed to delete cache %q: %w", name, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return false, fmt.Errorf("failed to delete cache %q: %d objects not deleted, first %s: %s",
				name, len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return true, nil
}

func (s *S3) objectKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

type s3Cache struct {
	parent *S3
	name   string
	prefix string
}

func (c *s3Cache) Name() string { return c.name }

func (c *s3Cache) objectKey(key string) string {
	return c.prefix + cacheutil.EncodeKey(key) + entrySuffix
}

func (c *s3Cache) Put(ctx context.Context, e *Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = c.parent.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.parent.bucket),
		Key:         aws.String(c.objectKey(e.Key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

func (c *s3Cache) get(ctx context.Context, objectKey string) (*Entry, bool, error) {
	out, err := c.parent.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.parent.bucket),
		Key:    aws.String(objectKey),
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	e, err := decodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (c *s3Cache) Match(ctx context.Context, key string) (*Entry, bool, error) {
	e, ok, err := c.get(ctx, c.objectKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	if e.Key != key {
		return nil, false, nil
	}
	return e, true, nil
}

func (c *s3Cache) Keys(ctx context.Context) ([]string, error) {
	objects, err := c.parent.objectKeys(ctx, c.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj, entrySuffix) {
			continue
		}
		e, ok, err := c.get(ctx, obj)
		if err != nil {
			log.WithError(err).Warnf("skipping unreadable cache object %s", obj)
			continue
		}
		if ok {
			keys = append(keys, e.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *s3Cache) Delete(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Match(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	_, err = c.parent.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.parent.bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
