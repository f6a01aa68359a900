// Package blobstore implements storage.Backend on top of gocloud.dev/blob.
//
// Every written range becomes its own part object; committing an object
// checks that the parts cover it without gaps and writes a manifest that
// maps byte offsets back to parts. It works with any blob driver (mem://,
// file://, s3://, gs://).
//
// # Storage Layout
//
//	{bucket}/{bucketID}/{fileID}.parts/state.json                (while writing)
//	{bucket}/{bucketID}/{fileID}.parts/part-0000000000000000
//	{bucket}/{bucketID}/{fileID}.parts/part-0000000000131072
//	{bucket}/{bucketID}/{fileID}.manifest.json                   (on commit)
//
// # Manifest Format
//
//	{
//	  "total_size": 1500000,
//	  "nonce": "...",
//	  "parts": [
//	    {"object": "part-0000000000000000", "offset": 0, "size": 131072, "checksum": "..."},
//	    ...
//	  ],
//	  "metadata": {"name": "backup.tar"},
//	  "completed_at": "2025-01-15T10:30:00Z"
//	}
package blobstore
