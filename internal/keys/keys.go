package keys

// Join prefixes key with namespace as "<ns>:<key>". An empty namespace leaves
// key untouched so facades can share keys with code that does not namespace.
func Join(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// JoinAll applies Join to every key, returning a new slice.
func JoinAll(ns string, ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = Join(ns, k)
	}
	return out
}
