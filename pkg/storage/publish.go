package storage

import (
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"aortec/internal/logger"
)

// Publisher copies finished artifacts to <prefix>/<job-id>/<name> in a bucket
type Publisher struct {
	fs     FileAccess
	bucket string
	prefix string
	log    logger.ILogger
}

// NewPublisher creates a publisher; the bucket is a root directory for FSAccess
func NewPublisher(fs FileAccess, bucket, prefix string, log logger.ILogger) *Publisher {
	return &Publisher{fs: fs, bucket: bucket, prefix: prefix, log: logger.OrNull(log)}
}

// Open builds a publisher for a storage backend ("local" or "s3")
func Open(backend, bucket, prefix, region string, log logger.ILogger) (*Publisher, error) {
	switch backend {
	case "", "local":
		return NewPublisher(&FSAccess{}, bucket, prefix, log), nil
	case "s3":
		client, err := NewS3Client(region)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create S3 session")
		}
		return NewPublisher(MakeS3Access(client), bucket, prefix, log), nil
	}
	return nil, errors.Errorf("unknown storage backend %q", backend)
}

// latestDir holds a copy of the most recently published job
const latestDir = "latest"

// Key returns the object key used for a file of a job
func (p *Publisher) Key(jobID, file string) string {
	return path.Join(p.prefix, jobID, MakeValidObjectName(filepath.Base(file)))
}

// LatestKey returns the key of the alias a published file is copied to
func (p *Publisher) LatestKey(file string) string {
	return p.Key(latestDir, file)
}

// Publish uploads each local file and returns the keys written, in order.
// Each upload is read back and its size checked. Objects left under the job
// from an earlier run are removed, and the files are then copied over the
// latest alias, replacing whatever it held.
func (p *Publisher) Publish(jobID string, files ...string) ([]string, error) {
	stale, err := p.list(path.Join(p.prefix, jobID) + "/")
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return keys, errors.Wrapf(err, "failed to read artifact %s", f)
		}
		key := p.Key(jobID, f)
		if err := p.fs.WriteObject(p.bucket, key, data); err != nil {
			return keys, errors.Wrapf(err, "failed to publish %s to %s", f, key)
		}
		if err := p.verify(key, len(data)); err != nil {
			return keys, err
		}
		p.log.Infof("Published %s (%d bytes) to %s/%s", filepath.Base(f), len(data), p.bucket, key)
		keys = append(keys, key)
		delete(stale, key)
	}

	if err := p.remove(stale); err != nil {
		return keys, err
	}
	return keys, p.promote(keys)
}

// list returns the keys under prefix; a prefix that does not exist yet is empty
func (p *Publisher) list(prefix string) (map[string]bool, error) {
	found, err := p.fs.ListObjects(p.bucket, prefix)
	if err != nil && !p.fs.IsNotFoundError(err) {
		return nil, errors.Wrapf(err, "failed to list %s/%s", p.bucket, prefix)
	}
	keys := make(map[string]bool, len(found))
	for _, k := range found {
		keys[k] = true
	}
	return keys, nil
}

func (p *Publisher) verify(key string, size int) error {
	data, err := p.fs.ReadObject(p.bucket, key)
	if err != nil {
		return errors.Wrapf(err, "failed to read back %s", key)
	}
	if len(data) != size {
		return errors.Errorf("published %s holds %d bytes, expected %d", key, len(data), size)
	}
	return nil
}

// remove deletes keys in sorted order, ignoring ones already gone
func (p *Publisher) remove(keys map[string]bool) error {
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		if err := p.fs.DeleteObject(p.bucket, k); err != nil && !p.fs.IsNotFoundError(err) {
			return errors.Wrapf(err, "failed to remove stale object %s", k)
		}
		p.log.Debugf("Removed stale object %s/%s", p.bucket, k)
	}
	return nil
}

// promote copies the published keys over the latest alias
func (p *Publisher) promote(keys []string) error {
	stale, err := p.list(path.Join(p.prefix, latestDir) + "/")
	if err != nil {
		return err
	}
	for _, key := range keys {
		alias := p.LatestKey(key)
		if err := p.fs.CopyObject(p.bucket, key, p.bucket, alias); err != nil {
			return errors.Wrapf(err, "failed to copy %s to %s", key, alias)
		}
		delete(stale, alias)
	}
	return p.remove(stale)
}
