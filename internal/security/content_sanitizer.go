package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は正規化済み投稿の本文マークアップを保存前にサニタイズする。
// 正規化処理は本文をエスケープしないため、外部由来のHTMLはここで許可リストに絞る。
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//   - 許可タグ: p, br, b, i, strong, em, blockquote, ul, ol, li, pre, code, a, img
//   - a: href のみ。target="_blank" と rel="noreferrer noopener" を付与
//   - img: src, alt のみ
//   - URLスキーム: https のみ
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "b", "i", "strong", "em",
		"blockquote", "ul", "ol", "li", "pre", "code",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool {
		return true
	})

	return &Sanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして返す。bluemondayのPolicyは並行利用できる。
func (s *Sanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
