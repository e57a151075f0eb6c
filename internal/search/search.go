package search

import (
	"errors"
	"fmt"
	"regexp"
)

// FollowOnCookie describes a cookie-based secondary attribution signal for a
// provider. It is carried as catalog data only.
type FollowOnCookie struct {
	ExtraCodeParam    string
	ExtraCodePrefixes []string
	Host              string
	Name              string
	CodeParam         string
	CodePrefixes      []string
}

// ProviderRule is one entry in the provider catalog.
type ProviderRule struct {
	Name       string
	URLPattern *regexp.Regexp

	QueryParam      string
	CodeParam       string
	CodePrefixes    []string
	FollowOnParams  []string
	FollowOnCookies []FollowOnCookie

	// ExtraAdServerPatterns classify a URL as an advertising URL for this
	// provider when any of them matches.
	ExtraAdServerPatterns []*regexp.Regexp
}

// Catalog is an immutable, ordered list of provider rules. Order is the
// tie-break for Resolve: the first matching rule wins.
type Catalog struct {
	rules []ProviderRule
}

// ErrDuplicateProvider is returned by NewCatalog when two rules share a name.
var ErrDuplicateProvider = errors.New("duplicate provider name")

// NewCatalog builds a catalog from rules in the given order.
func NewCatalog(rules ...ProviderRule) (*Catalog, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]ProviderRule, 0, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("provider rule %d: empty name", i)
		}
		if r.URLPattern == nil {
			return nil, fmt.Errorf("provider %q: missing url pattern", r.Name)
		}
		if _, ok := seen[r.Name]; ok {
			return nil, fmt.Errorf("provider %q: %w", r.Name, ErrDuplicateProvider)
		}
		seen[r.Name] = struct{}{}
		out = append(out, r.clone())
	}
	return &Catalog{rules: out}, nil
}

// Rules returns a copy of the catalog rules in declaration order.
func (c *Catalog) Rules() []ProviderRule {
	if c == nil {
		return nil
	}
	out := make([]ProviderRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.clone()
	}
	return out
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Lookup returns the rule with the given name.
func (c *Catalog) Lookup(name string) (ProviderRule, bool) {
	if c == nil {
		return ProviderRule{}, false
	}
	for _, r := range c.rules {
		if r.Name == name {
			return r.clone(), true
		}
	}
	return ProviderRule{}, false
}

// Resolve returns the first rule whose URL pattern matches anywhere in rawURL.
// The input is matched as-is, without any normalization.
func (c *Catalog) Resolve(rawURL string) (ProviderRule, bool) {
	if c == nil {
		return ProviderRule{}, false
	}
	for _, r := range c.rules {
		if r.URLPattern.MatchString(rawURL) {
			return r.clone(), true
		}
	}
	return ProviderRule{}, false
}

// clone copies the slices of r so callers cannot write into catalog storage.
// Compiled patterns are safe to share.
func (r ProviderRule) clone() ProviderRule {
	r.CodePrefixes = append([]string(nil), r.CodePrefixes...)
	r.FollowOnParams = append([]string(nil), r.FollowOnParams...)
	r.ExtraAdServerPatterns = append([]*regexp.Regexp(nil), r.ExtraAdServerPatterns...)
	if r.FollowOnCookies != nil {
		cookies := make([]FollowOnCookie, len(r.FollowOnCookies))
		for i, c := range r.FollowOnCookies {
			c.ExtraCodePrefixes = append([]string(nil), c.ExtraCodePrefixes...)
			c.CodePrefixes = append([]string(nil), c.CodePrefixes...)
			cookies[i] = c
		}
		r.FollowOnCookies = cookies
	}
	return r
}

// ContainsAds reports whether any of urls matches one of the rule's ad-server
// patterns.
func (r ProviderRule) ContainsAds(urls []string) bool {
	return ContainsAds(r, urls)
}

// ContainsAds reports whether at least one URL matches at least one of the
// provider's ad-server patterns. Providers without patterns never contain ads.
func ContainsAds(rule ProviderRule, urls []string) bool {
	if len(rule.ExtraAdServerPatterns) == 0 {
		return false
	}
	for _, u := range urls {
		for _, re := range rule.ExtraAdServerPatterns {
			if re.MatchString(u) {
				return true
			}
		}
	}
	return false
}
