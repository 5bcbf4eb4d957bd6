// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// FeedKind はフィードのソース形式を表す。
// 正規化処理の選択は設定値のFeedKindで行い、ペイロードの形状からは推測しない。
type FeedKind string

const (
	// FeedKindTumblr はブロック構造のタイムラインAPI（NPF）。
	FeedKindTumblr FeedKind = "tumblr"
	// FeedKindNitter はRSSによるソーシャルミラー。
	FeedKindNitter FeedKind = "nitter"
)

// Valid は既知のFeedKindかどうかを返す。
func (k FeedKind) Valid() bool {
	return k == FeedKindTumblr || k == FeedKindNitter
}

// Feed は同期対象のフィード設定を表す。
// 起動時に設定から1回生成し、イミュータブルとして扱う。
type Feed struct {
	Name           string
	Kind           FeedKind
	SiteURL        string
	Accounts       []string
	IncludeReblogs bool
	IncludeTags    bool
	Lookback       time.Duration
	MaxItems       int
	AuthToken      string
}

// Key はKVストアの名前空間として使うフィード識別子を返す。
// 同種のフィードが複数設定されてもキーが衝突しないようにNameを含める。
func (f Feed) Key() string {
	return string(f.Kind) + ":" + f.Name
}

// SiteBase は末尾のスラッシュを除いたサイトURLを返す。パスはこれに "/" 区切りで連結する。
func SiteBase(siteURL string) string {
	return strings.TrimRight(siteURL, "/")
}
