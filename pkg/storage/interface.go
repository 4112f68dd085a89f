// Package storage publishes conversion artifacts to a local directory tree
// or an S3 bucket behind one interface.
package storage

import "strings"

// FileAccess reads and writes objects addressed by a bucket and a path. For
// the local file system the bucket is a root directory.
type FileAccess interface {
	ListObjects(bucket string, prefix string) ([]string, error)

	ReadObject(bucket string, path string) ([]byte, error)
	WriteObject(bucket string, path string, data []byte) error

	DeleteObject(bucket string, path string) error
	CopyObject(srcBucket string, srcPath string, dstBucket string, dstPath string) error

	IsNotFoundError(err error) bool
}

// MakeValidObjectName strips characters that cause trouble in object keys
// and flattens path separators
func MakeValidObjectName(name string) string {
	name = strings.NewReplacer(
		"?", "", "$", "", "#", "", "!", "", "'", "", "\"", "",
		"/", "_", "\\", "_",
	).Replace(name)
	return name
}
