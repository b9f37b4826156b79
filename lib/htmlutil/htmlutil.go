package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses the whitespace soup that server-rendered
// markup leaves inside text nodes.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

var lastDigits = regexp.MustCompile(`(\d+)\s*/?\s*$`)
var pageParam = regexp.MustCompile(`[?&]page=(\d+)`)

// LastPageNumber reads the highest page number out of a pagination
// block. Falls back to 1 when the document has no pagination at all.
func LastPageNumber(doc *goquery.Document) int {
	last := 1
	doc.Find(".pagination a, ul.pagination li a, a[href*='page=']").Each(func(_ int, sel *goquery.Selection) {
		n := 0
		if href, ok := sel.Attr("href"); ok {
			if m := pageParam.FindStringSubmatch(href); len(m) == 2 {
				n = atoi(m[1])
			}
		}
		if n == 0 {
			if m := lastDigits.FindStringSubmatch(sel.Text()); len(m) == 2 {
				n = atoi(m[1])
			}
		}
		if n > last {
			last = n
		}
	})
	return last
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
