package extract

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Page is what the ads content script reports about a rendered page.
type Page struct {
	URL   string
	Title string
	// Links holds the absolute http(s) targets of every anchor and image-map
	// area in document order. Duplicates are kept.
	Links []string
}

// FromHTML collects the title and link targets of a results page. Relative
// references resolve against <base href> when present, else against pageURL.
func FromHTML(input []byte, pageURL string) Page {
	page := Page{URL: pageURL}
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return page
	}
	page.Title = strings.TrimSpace(findTitle(node))

	base, _ := url.Parse(pageURL)
	if b := findFirst(node, "base"); b != nil {
		if href, ok := attr(b, "href"); ok {
			if bu, err := url.Parse(strings.TrimSpace(href)); err == nil {
				if base != nil {
					bu = base.ResolveReference(bu)
				}
				base = bu
			}
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "a", "area":
				if href, ok := attr(n, "href"); ok {
					if link, ok := resolve(base, href); ok {
						page.Links = append(page.Links, link)
					}
				}
			case "template", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return page
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	}
	return "", false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}
