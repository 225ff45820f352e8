// Package minio implements blobstore.BlobStore on MinIO and other
// S3-compatible object storage, letting ranks pull their shard files
// straight from a bucket.
package minio
