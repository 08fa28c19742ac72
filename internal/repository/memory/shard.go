// Package memory implements the repository contracts in process memory.
// Records are spread over fixed shards so that operations on different
// seats, tokens or users never contend on the same lock.
package memory

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

func shardOfInt(id int64) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return int(xxhash.Sum64(b[:]) % shardCount)
}

func shardOfString(id string) int {
	return int(xxhash.Sum64String(id) % shardCount)
}
