package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// memS3 is an in-memory stand-in for the handful of S3 calls we make.
// pageSize > 0 forces ListObjectsV2 to paginate.
type memS3 struct {
	s3iface.S3API

	mutex    sync.Mutex
	objects  map[string][]byte
	pageSize int
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}}
}

func (m *memS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	data, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) DeleteObject(in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) CopyObject(in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	data, ok := m.objects[*in.CopySource]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	m.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.CopyObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var keys []string
	for k := range m.objects {
		bucket, key, _ := strings.Cut(k, "/")
		if bucket == *in.Bucket && strings.HasPrefix(key, *in.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func exerciseFileAccess(t *testing.T, fa FileAccess, bucket string) {
	t.Helper()

	if err := fa.WriteObject(bucket, "jobs/a/model.stl", []byte("solid")); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}
	if err := fa.WriteObject(bucket, "jobs/a/preview.png", []byte("png")); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}

	data, err := fa.ReadObject(bucket, "jobs/a/model.stl")
	if err != nil || string(data) != "solid" {
		t.Fatalf("ReadObject = %q, %v", data, err)
	}

	if err := fa.CopyObject(bucket, "jobs/a/model.stl", bucket, "jobs/b/model.stl"); err != nil {
		t.Fatalf("CopyObject failed: %v", err)
	}

	list, err := fa.ListObjects(bucket, "jobs")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(list)
	want := []string{"jobs/a/model.stl", "jobs/a/preview.png", "jobs/b/model.stl"}
	if strings.Join(list, ",") != strings.Join(want, ",") {
		t.Errorf("ListObjects = %v, want %v", list, want)
	}

	if err := fa.DeleteObject(bucket, "jobs/a/preview.png"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	_, err = fa.ReadObject(bucket, "jobs/a/preview.png")
	if err == nil || !fa.IsNotFoundError(err) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
}

func TestFSAccess(t *testing.T) {
	exerciseFileAccess(t, &FSAccess{}, t.TempDir())
}

func TestS3Access(t *testing.T) {
	exerciseFileAccess(t, MakeS3Access(newMemS3()), "artifacts")
}

func TestS3ListingWithContinuation(t *testing.T) {
	mock := newMemS3()
	mock.pageSize = 2
	fa := MakeS3Access(mock)
	for _, k := range []string{"p/1", "p/2", "p/3", "p/4", "p/5", "p/dir/"} {
		if err := fa.WriteObject("b", k, []byte(k)); err != nil {
			t.Fatalf("WriteObject failed: %v", err)
		}
	}
	list, err := fa.ListObjects("b", "p/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if strings.Join(list, ",") != "p/1,p/2,p/3,p/4,p/5" {
		t.Errorf("Unexpected listing %v", list)
	}
}

func TestPublish(t *testing.T) {
	src := t.TempDir()
	stl := filepath.Join(src, "aorta model.stl")
	png := filepath.Join(src, "aorta model_preview.png")
	os.WriteFile(stl, []byte("stl"), 0644)
	os.WriteFile(png, []byte("png"), 0644)

	mock := newMemS3()
	p := NewPublisher(MakeS3Access(mock), "bucket", "aortec/outputs", nil)

	keys, err := p.Publish("job-1", stl, png)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "aortec/outputs/job-1/aorta model.stl" {
		t.Errorf("Unexpected keys %v", keys)
	}
	if string(mock.objects["bucket/aortec/outputs/job-1/aorta model_preview.png"]) != "png" {
		t.Errorf("Preview not uploaded")
	}

	if _, err := p.Publish("job-2", filepath.Join(src, "missing.stl")); err == nil {
		t.Error("Expected error for a missing artifact")
	}
}

func TestPublishReplacesStaleObjects(t *testing.T) {
	src := t.TempDir()
	stl := filepath.Join(src, "aorta.stl")
	png := filepath.Join(src, "aorta_preview.png")
	os.WriteFile(stl, []byte("stl"), 0644)
	os.WriteFile(png, []byte("png"), 0644)

	mock := newMemS3()
	fa := MakeS3Access(mock)
	p := NewPublisher(fa, "bucket", "out", nil)

	// a rerun of job-1 leaves no leftovers and must not touch job-10
	fa.WriteObject("bucket", "out/job-1/old_preview.png", []byte("old"))
	fa.WriteObject("bucket", "out/job-10/aorta.stl", []byte("other"))
	fa.WriteObject("bucket", "out/latest/previous.stl", []byte("prev"))

	if _, err := p.Publish("job-1", stl, png); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if _, ok := mock.objects["bucket/out/job-1/old_preview.png"]; ok {
		t.Error("Expected the stale preview to be removed")
	}
	if string(mock.objects["bucket/out/job-10/aorta.stl"]) != "other" {
		t.Error("Expected a job sharing the id prefix to be left alone")
	}

	latest, err := fa.ListObjects("bucket", "out/latest/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(latest)
	if strings.Join(latest, ",") != "out/latest/aorta.stl,out/latest/aorta_preview.png" {
		t.Errorf("Unexpected latest alias %v", latest)
	}
	if p.LatestKey(stl) != "out/latest/aorta.stl" {
		t.Errorf("LatestKey = %s", p.LatestKey(stl))
	}

	// a second job takes over the alias
	os.WriteFile(stl, []byte("stl2"), 0644)
	if _, err := p.Publish("job-2", stl); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if string(mock.objects["bucket/out/latest/aorta.stl"]) != "stl2" {
		t.Error("Expected the latest alias to follow job-2")
	}
	if _, ok := mock.objects["bucket/out/latest/aorta_preview.png"]; ok {
		t.Error("Expected the job-1 preview to leave the latest alias")
	}
}

// shortWrites drops the last byte of every object it stores
type shortWrites struct {
	FileAccess
}

func (s shortWrites) WriteObject(bucket string, path string, data []byte) error {
	return s.FileAccess.WriteObject(bucket, path, data[:len(data)-1])
}

func TestPublishVerifiesUploads(t *testing.T) {
	f := filepath.Join(t.TempDir(), "m.stl")
	os.WriteFile(f, []byte("solid"), 0644)

	p := NewPublisher(shortWrites{&FSAccess{}}, t.TempDir(), "out", nil)
	if _, err := p.Publish("j", f); err == nil {
		t.Error("Expected a truncated upload to be reported")
	}
}

func TestOpenLocal(t *testing.T) {
	root := t.TempDir()
	p, err := Open("local", root, "out", "", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f := filepath.Join(t.TempDir(), "m.stl")
	os.WriteFile(f, []byte("x"), 0644)
	if _, err := p.Publish("j", f); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "out", "j", "m.stl")); err != nil {
		t.Errorf("Expected published file: %v", err)
	}

	if _, err := Open("ftp", "", "", "", nil); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestMakeValidObjectName(t *testing.T) {
	if got := MakeValidObjectName(`a/b\c?#d`); got != "a_b_cd" {
		t.Errorf("MakeValidObjectName = %q", got)
	}
}
