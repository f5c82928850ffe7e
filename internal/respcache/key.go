package respcache

import "strconv"

// DeriveKey returns the cache key for a request URI and an optional auth
// scope. The URI is used verbatim: no decoding, case folding or trailing
// slash handling. An empty scope means the entry is shared by every
// unauthenticated caller.
//
// Unscoped keys have the form "u:<uri>"; scoped keys have the form
// "s:<len(scope)>:<scope>:<uri>". The length prefix keeps the mapping
// injective even when the scope itself contains colons.
func DeriveKey(uri, scope string) string {
	if scope == "" {
		return "u:" + uri
	}
	return "s:" + strconv.Itoa(len(scope)) + ":" + scope + ":" + uri
}
