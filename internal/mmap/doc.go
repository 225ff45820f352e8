// Package mmap provides thin wrappers around memory mapping syscalls.
//
// Two kinds of mappings are exposed:
//
//   - Open maps a file read-only (used by the local blob store).
//   - MapAnon creates an anonymous read-write mapping (used by the
//     arena allocator to keep large shard buffers off the Go heap).
//
// A Mapping owns its byte slice and is responsible for unmapping it;
// the slice must not be used after Close.
package mmap
