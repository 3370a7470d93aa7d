package badger

import (
	"fmt"
	"strconv"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the data types
// into namespaces. Secondary indexes are plain keys whose value is the
// primary ID; they are written in the same transaction as the record, and
// Badger's serializable snapshot isolation turns a concurrent insert of the
// same index key into a transaction conflict.
//
// Data Type           Prefix  Key Format                        Value
// ===========================================================================
// User                "u:"    u:<id:020d>                       User (JSON)
// Username index      "un:"   un:<username>                     id (decimal)
// Email index         "ue:"   ue:<normalized email>             id (decimal)
// File record         "f:"    f:<id:020d>                       FileRecord (JSON)
// Owner/name index    "fn:"   fn:<owner>\x00<filename>          id (decimal)
// Share token         "t:"    t:<sha256 hex>                    ShareToken (JSON)
// ID sequences        "seq:"  seq:user, seq:file                Badger sequence
//
// The owner/name index doubles as the listing index: a prefix scan over
// "fn:<owner>\x00" yields the owner's files ordered by filename bytes. NUL
// cannot appear in usernames or filenames, so the separator is unambiguous.

const (
	prefixUser          = "u:"
	prefixUsernameIndex = "un:"
	prefixEmailIndex    = "ue:"
	prefixFile          = "f:"
	prefixFileNameIndex = "fn:"
	prefixShareToken    = "t:"

	keyUserSequence = "seq:user"
	keyFileSequence = "seq:file"
)

func keyUser(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixUser, id))
}

func keyUsername(username string) []byte {
	return []byte(prefixUsernameIndex + username)
}

func keyEmail(normalizedEmail string) []byte {
	return []byte(prefixEmailIndex + normalizedEmail)
}

func keyFile(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixFile, id))
}

func keyOwnerPrefix(owner string) []byte {
	return []byte(prefixFileNameIndex + owner + "\x00")
}

func keyFileName(owner, filename string) []byte {
	return append(keyOwnerPrefix(owner), filename...)
}

func keyShareToken(hash string) []byte {
	return []byte(prefixShareToken + hash)
}

func encodeID(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

func decodeID(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}
