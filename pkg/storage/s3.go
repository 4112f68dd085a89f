package storage

import (
	"bytes"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Access implements FileAccess on AWS S3
type S3Access struct {
	s3Api s3iface.S3API
}

// MakeS3Access wraps an S3 client
func MakeS3Access(s3Api s3iface.S3API) S3Access {
	return S3Access{s3Api: s3Api}
}

// NewS3Client opens a session in region; an empty region falls back to the
// SDK's environment and shared config lookup
func NewS3Client(region string) (s3iface.S3API, error) {
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// ListObjects pages through ListObjectsV2 until no continuation token is left
func (a S3Access) ListObjects(bucket string, prefix string) ([]string, error) {
	result := []string{}
	params := s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listing, err := a.s3Api.ListObjectsV2(&params)
		if err != nil {
			return []string{}, err
		}
		for _, item := range listing.Contents {
			// "directories" made in the web console are empty keys ending in /
			if item.Key != nil && !strings.HasSuffix(*item.Key, "/") {
				result = append(result, *item.Key)
			}
		}
		if listing.IsTruncated == nil || !*listing.IsTruncated || listing.NextContinuationToken == nil {
			break
		}
		params.ContinuationToken = listing.NextContinuationToken
	}
	return result, nil
}

func (a S3Access) ReadObject(bucket string, path string) ([]byte, error) {
	result, err := a.s3Api.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

func (a S3Access) WriteObject(bucket string, path string, data []byte) error {
	_, err := a.s3Api.PutObject(&s3.PutObjectInput{
		Body:   bytes.NewReader(data),
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	return err
}

func (a S3Access) DeleteObject(bucket string, path string) error {
	_, err := a.s3Api.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	return err
}

func (a S3Access) CopyObject(srcBucket string, srcPath string, dstBucket string, dstPath string) error {
	_, err := a.s3Api.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstPath),
		CopySource: aws.String(srcBucket + "/" + srcPath),
	})
	return err
}

func (a S3Access) IsNotFoundError(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
