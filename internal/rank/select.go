// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"strings"

	"github.com/pdiddy/reference-refine/internal/retrieve"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// catalogHosts mark library and archive records, which make good secondary
// links.
var catalogHosts = []string{"worldcat", "archive.org", "jstor", "library", "loc.gov", "hathitrust", "books.google"}

// SelectURLs picks a primary and secondary URL from ranked candidates. The
// primary is the top candidate. The secondary must be on a different host;
// catalog records are preferred, otherwise the next best candidate wins.
// Either result may be empty.
func SelectURLs(ranked []types.Candidate) (primary, secondary string) {
	if len(ranked) == 0 {
		return "", ""
	}
	primary = ranked[0].URL
	host := retrieve.Host(primary)

	for _, c := range ranked[1:] {
		h := retrieve.Host(c.URL)
		if h == host {
			continue
		}
		if secondary == "" {
			secondary = c.URL
		}
		if isCatalog(h) {
			return primary, c.URL
		}
	}
	return primary, secondary
}

func isCatalog(host string) bool {
	for _, m := range catalogHosts {
		if strings.Contains(host, m) {
			return true
		}
	}
	return false
}
