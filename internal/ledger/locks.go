package ledger

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Advisory lock keys live in one 64-bit space shared with the rest of the database, so
// each key is namespaced before hashing.
const (
	streamLockNamespace  = "stock_ledger:stream:"
	companyLockNamespace = "stock_ledger:company:"
)

// StreamLockKey returns the advisory lock key serialising appends to one stream.
func StreamLockKey(key StreamKey) int64 {
	buf := make([]byte, 0, len(streamLockNamespace)+41)
	buf = append(buf, streamLockNamespace...)
	buf = strconv.AppendInt(buf, key.CompanyID, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, key.ItemID, 10)
	return int64(xxhash.Sum64(buf))
}

// CompanyLockKey returns the advisory lock key appends share and rebuilds take exclusively.
func CompanyLockKey(companyID int64) int64 {
	buf := make([]byte, 0, len(companyLockNamespace)+20)
	buf = append(buf, companyLockNamespace...)
	buf = strconv.AppendInt(buf, companyID, 10)
	return int64(xxhash.Sum64(buf))
}
