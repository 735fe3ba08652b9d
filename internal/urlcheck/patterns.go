// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package urlcheck

import "regexp"

type pattern struct {
	re   *regexp.Regexp
	name string
}

func p(expr, name string) pattern {
	return pattern{re: regexp.MustCompile(`(?i)` + expr), name: name}
}

var soft404Patterns = []pattern{
	p(`404.*not\s*found|not\s*found.*404`, "404 not found"),
	p(`page\s*not\s*found|cannot\s*find.*page`, "page not found"),
	p(`sorry.*couldn't\s*find|we\s*couldn't\s*locate`, "apology for not found"),
	p(`oops.*nothing\s*here|there's\s*nothing\s*here`, "nothing here"),
	p(`doi\s*not\s*found|doi.*not\s*available`, "DOI not found"),
	p(`document\s*not\s*found|article\s*not\s*available`, "document unavailable"),
	p(`item\s*not\s*found|handle\s*not\s*found`, "item or handle not found"),
	p(`<title>[^<]*(404|not\s*found|error)[^<]*</title>`, "error in title"),
}

var paywallPatterns = []pattern{
	p(`subscribe.*continue|subscription.*required`, "subscription required"),
	p(`\$\d+(\.\d{2})?\s*(to\s*)?(access|view|read|download)`, "price to access"),
	p(`purchase.*access|buy.*article|pay.*view`, "purchase required"),
	p(`paywall|payment.*required`, "paywall detected"),
	p(`login.*subscribe|sign\s*in.*subscribe`, "login to subscribe"),
	p(`members?\s*only|members?\s*exclusive`, "members only"),
	p(`become\s*a\s*(member|subscriber)`, "subscription prompt"),
	p(`free\s*trial.*then\s*\$`, "trial then paid"),
	p(`upgrade\s*to\s*(premium|pro|plus)`, "upgrade required"),
	p(`limited\s*access.*subscribe`, "limited without subscription"),
	p(`full\s*text.*\$|complete\s*article.*\$`, "paid full text"),
	p(`price.*download|cost.*access`, "paid download"),
}

var loginPatterns = []pattern{
	p(`sign\s*in.*continue|log\s*in.*continue`, "login to continue"),
	p(`authentication.*required|login.*required`, "authentication required"),
	p(`institutional.*access|institution.*login`, "institutional access"),
	p(`access.*through.*library`, "library access"),
	p(`credentials.*required|authorized.*users?\s*only`, "credentials required"),
	p(`please\s*(log\s*in|sign\s*in)`, "login prompt"),
	p(`restricted.*access|access.*restricted`, "restricted access"),
	p(`account.*required|create.*account`, "account required"),
	p(`university.*access|academic.*access`, "academic access"),
	p(`licensed.*content|license.*required`, "licensed content"),
}

var previewPatterns = []pattern{
	p(`limited\s*preview|preview\s*only`, "limited preview"),
	p(`first\s*\d+\s*pages?|sample\s*pages?`, "sample pages"),
	p(`excerpt|selected\s*pages?`, "excerpt only"),
	p(`table\s*of\s*contents\s*only`, "contents only"),
	p(`abstract\s*only|summary\s*only`, "abstract only"),
	p(`partial\s*view|incomplete\s*view`, "partial view"),
	p(`preview\s*unavailable|full\s*view\s*not\s*available`, "no full view"),
	p(`\d+%?\s*visible|\d+\s*of\s*\d+\s*pages`, "percentage visible"),
	p(`sample\s*content|limited\s*content`, "sample content"),
}

func firstMatch(ps []pattern, content string) (string, bool) {
	for _, pt := range ps {
		if pt.re.MatchString(content) {
			return pt.name, true
		}
	}
	return "", false
}
