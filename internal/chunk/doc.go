// Package chunk persists encoded training pairs in fixed-size, numbered,
// immutable chunk files.
//
// Layout:
//
//	<data>/<chunkSize>chunks/
//	  1.chunk, 2.chunk, ...   committed chunks
//	  manifest.json           per-chunk provenance (input offsets, run ids)
//	  .lock                   held by a builder while it writes
//
// A chunk is written to "<index>.chunk.tmp", synced, and renamed into place,
// so a chunk file is either absent or complete. Chunks are never rewritten.
//
// File format (little endian):
//
//	Header (32 bytes):
//	  Magic (4): "PCHK"
//	  Version (2)
//	  Flags (2): reserved
//	  Index (4): 1-based chunk index
//	  ChunkSize (4): capacity the corpus was built with
//	  Count (4): number of pairs
//	  Checksum (4): CRC32 of the uncompressed body
//	  BodySize (8): uncompressed body length
//	Body (zstd):
//	  Boards: Count * 384 int8 values, plane-major per position
//	  Scores: Count * int32
package chunk
