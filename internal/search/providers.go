package search

import "regexp"

// Built-in provider names.
const (
	Google     = "google"
	DuckDuckGo = "duckduckgo"
	Yahoo      = "yahoo"
	Baidu      = "baidu"
	Bing       = "bing"
)

var defaultCatalog = mustCatalog(
	ProviderRule{
		Name:           Google,
		URLPattern:     regexp.MustCompile(`^https:\/\/www\.google\.(?:.+)\/search`),
		QueryParam:     "q",
		CodeParam:      "client",
		CodePrefixes:   []string{"firefox"},
		FollowOnParams: []string{"oq", "ved", "ei"},
		ExtraAdServerPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^https?:\/\/www\.google(?:adservices)?\.com\/(?:pagead\/)?aclk`),
		},
	},
	ProviderRule{
		Name:         DuckDuckGo,
		URLPattern:   regexp.MustCompile(`^https:\/\/duckduckgo\.com\/`),
		QueryParam:   "q",
		CodeParam:    "t",
		CodePrefixes: []string{"f"},
		ExtraAdServerPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^https:\/\/duckduckgo.com\/y\.js`),
			regexp.MustCompile(`^https:\/\/www\.amazon\.(?:[a-z.]{2,24}).*(?:tag=duckduckgo-)`),
		},
	},
	ProviderRule{
		Name:       Yahoo,
		URLPattern: regexp.MustCompile(`^https:\/\/(?:.*)search\.yahoo\.com\/search`),
		QueryParam: "p",
	},
	ProviderRule{
		Name:           Baidu,
		URLPattern:     regexp.MustCompile(`^https:\/\/www\.baidu\.com\/from=844b\/(?:s|baidu)`),
		QueryParam:     "wd",
		CodeParam:      "tn",
		CodePrefixes:   []string{"34046034_", "monline_"},
		FollowOnParams: []string{"oq"},
	},
	ProviderRule{
		Name:         Bing,
		URLPattern:   regexp.MustCompile(`^https:\/\/www\.bing\.com\/search`),
		QueryParam:   "q",
		CodeParam:    "pc",
		CodePrefixes: []string{"MOZ", "MZ"},
		FollowOnCookies: []FollowOnCookie{{
			ExtraCodeParam:    "form",
			ExtraCodePrefixes: []string{"QBRE"},
			Host:              "www.bing.com",
			Name:              "SRCHS",
			CodeParam:         "PC",
			CodePrefixes:      []string{"MOZ", "MZ"},
		}},
		ExtraAdServerPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^https:\/\/www\.bing\.com\/acli?c?k`),
			regexp.MustCompile(`^https:\/\/www\.bing\.com\/fd\/ls\/GLinkPingPost\.aspx.*acli?c?k`),
		},
	},
)

// DefaultCatalog returns the built-in provider catalog. The returned value is
// shared and must be treated as read-only.
func DefaultCatalog() *Catalog { return defaultCatalog }

func mustCatalog(rules ...ProviderRule) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}
