// Package enrich はリブログ・リツイート・引用の検出と、引用先ページの二次取得を提供する。
package enrich

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// PageMetadata はHTMLのheadから抽出したOpen Graphプロパティ。
type PageMetadata struct {
	Title       string
	Description string
	Image       string
	ImageWidth  int
	ImageHeight int
}

// ParsePageMetadata はHTMLのheadタグ内のmeta要素からog:*プロパティを抽出する。
// og:imageの相対URLはbaseURLを基準に絶対URLに解決される。
func ParsePageMetadata(htmlBody []byte, baseURL string) PageMetadata {
	var meta PageMetadata
	var pageTitle string

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return finishMetadata(meta, pageTitle, baseURL)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "body" {
				return finishMetadata(meta, pageTitle, baseURL)
			}
			if tagName == "title" {
				inTitle = true
				continue
			}
			if tagName != "meta" || !hasAttr {
				continue
			}

			var property, content string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "property", "name":
					if property == "" {
						property = strings.ToLower(string(val))
					}
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}

			switch property {
			case "og:title":
				meta.Title = content
			case "og:description":
				meta.Description = content
			case "og:image":
				if meta.Image == "" {
					meta.Image = content
				}
			case "og:image:width":
				meta.ImageWidth, _ = strconv.Atoi(content)
			case "og:image:height":
				meta.ImageHeight, _ = strconv.Atoi(content)
			}

		case html.TextToken:
			if inTitle && pageTitle == "" {
				pageTitle = strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				return finishMetadata(meta, pageTitle, baseURL)
			}
		}
	}
}

func finishMetadata(meta PageMetadata, pageTitle, baseURL string) PageMetadata {
	if meta.Title == "" {
		meta.Title = pageTitle
	}
	if meta.Image != "" {
		meta.Image = resolveURL(baseURL, meta.Image)
	}
	return meta
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。解決できない場合は入力をそのまま返す。
func resolveURL(baseURL, rawRef string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return rawRef
	}
	ref, err := url.Parse(rawRef)
	if err != nil {
		return rawRef
	}
	return base.ResolveReference(ref).String()
}
