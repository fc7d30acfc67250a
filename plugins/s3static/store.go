/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package s3static serves files straight out of an S3 (or S3-compatible)
// bucket, one GetObject call per request - the static-asset counterpart to
// the devices plugin's database-backed resource.
package s3static

import (
	"context"
	"errors"
	"io"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	sdkcfg "github.com/aws/aws-sdk-go-v2/config"
	sdkcreds "github.com/aws/aws-sdk-go-v2/credentials"
	sdks3 "github.com/aws/aws-sdk-go-v2/service/s3"
	sdks3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config describes the bucket a Store serves and how to reach it. Endpoint
// and PathStyle only need setting for an S3-compatible service (minio,
// etc.); AccessKeyID/SecretAccessKey override the default credential chain
// (environment, shared config, IMDS) when a deployment pins static keys.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// Store wraps one bucket's GetObject surface.
type Store struct {
	cli    *sdks3.Client
	bucket string
}

// NewStore resolves AWS credentials/region via the standard SDK config
// loader and builds a Store bound to cfg.Bucket.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrorConfig.Error()
	}

	var opts []func(*sdkcfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, sdkcfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, sdkcfg.WithCredentialsProvider(sdkcreds.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}

	awsCfg, err := sdkcfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, ErrorConfig.Error(err)
	}

	cli := sdks3.NewFromConfig(awsCfg, func(o *sdks3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = sdkaws.String(cfg.Endpoint)
		}
	})

	return &Store{cli: cli, bucket: cfg.Bucket}, nil
}

// Get fetches key's full body and content type. key must not be empty or
// contain ".." path-traversal components - S3 keys have no directory
// semantics of their own, so this guards against a plugin-level mistake
// that would otherwise forward an unexpected key straight to the bucket.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	if key == "" || strings.Contains(key, "..") {
		return nil, "", ErrorBadKey.Error()
	}

	out, err := s.cli.GetObject(ctx, &sdks3.GetObjectInput{
		Bucket: sdkaws.String(s.bucket),
		Key:    sdkaws.String(key),
	})
	if err != nil {
		var nsk *sdks3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrorNotFound.Error()
		}

		var nf *sdks3types.NotFound
		if errors.As(err, &nf) {
			return nil, "", ErrorNotFound.Error()
		}

		return nil, "", ErrorUpstream.Error(err)
	}
	defer func() { _ = out.Body.Close() }()

	body, rerr := io.ReadAll(out.Body)
	if rerr != nil {
		return nil, "", ErrorUpstream.Error(rerr)
	}

	contentType := "application/octet-stream"
	if out.ContentType != nil {
		contentType = *out.ContentType
	}

	return body, contentType, nil
}
