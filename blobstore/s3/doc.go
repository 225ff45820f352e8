// Package s3 implements blobstore.BlobStore on Amazon S3 using the AWS
// SDK v2. Ranged GetObject calls back ReadAt; Put streams through the
// transfer manager so large shard files upload in parts.
package s3
