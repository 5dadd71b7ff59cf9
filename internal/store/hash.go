package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// SourceHash fingerprints module source text.
func SourceHash(src []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(src))
}

// WovenHash computes a deterministic hash of a woven module's site layout:
// site identity, kind, position and the callbacks registered on each site.
// Line numbers do not affect the hash.
func WovenHash(sites []*Site) string {
	type siteKey struct {
		id, kind, target, member, disc string
		ordinal                        int
		callbacks                      string
	}
	keys := make([]siteKey, len(sites))
	for i, s := range sites {
		keys[i] = siteKey{s.SiteID, s.Kind, s.Target, s.Member, s.Discriminator, s.Ordinal, strings.Join(s.Callbacks, ",")}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].id < keys[j].id })

	h := xxh3.New()
	for _, k := range keys {
		fmt.Fprintf(h, "site:%s:%s:%s:%s:%s:%d:%s\n", k.id, k.kind, k.target, k.member, k.disc, k.ordinal, k.callbacks)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
