// Package tumblr はTumblrダッシュボード（NPF形式）のページ取得と正規化を提供する。
package tumblr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/timelinesync/internal/markup"
)

// PostTypeBlocks はNPF形式の投稿種別。これ以外の投稿は正規化しない。
const PostTypeBlocks = "blocks"

// ブロック種別の判別子。
const (
	BlockTypeText  = "text"
	BlockTypeImage = "image"
	BlockTypeLink  = "link"
	BlockTypeAudio = "audio"
	BlockTypeVideo = "video"
)

// LayoutTypeAsk は質問箱の回答を示すレイアウト種別。
const LayoutTypeAsk = "ask"

// DashboardResponse は /v2/user/dashboard のレスポンス。
type DashboardResponse struct {
	Meta struct {
		Status int    `json:"status"`
		Msg    string `json:"msg"`
	} `json:"meta"`
	Response struct {
		Posts []Post `json:"posts"`
		Links *Links `json:"_links,omitempty"`
	} `json:"response"`
}

// Links はページングリンク。
type Links struct {
	Next *struct {
		Href string `json:"href"`
	} `json:"next,omitempty"`
}

// Blog はブログの公開情報。
type Blog struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Title string `json:"title"`
	UUID  string `json:"uuid"`
}

// Content は投稿本体とリブログトレイルのエントリに共通する内容。
type Content struct {
	Blog           *Blog    `json:"blog,omitempty"`
	BrokenBlogName string   `json:"broken_blog_name,omitempty"`
	Blocks         []Block  `json:"content"`
	Layout         []Layout `json:"layout"`
	Tags           []string `json:"tags,omitempty"`
}

// Post はダッシュボードの1投稿。読み取り専用の生データとして扱う。
type Post struct {
	Content
	ID            string       `json:"id_string"`
	Type          string       `json:"type"`
	TimestampSec  int64        `json:"timestamp"`
	PostURL       string       `json:"post_url"`
	ParentPostURL string       `json:"parent_post_url,omitempty"`
	Summary       string       `json:"summary,omitempty"`
	Trail         []TrailEntry `json:"trail,omitempty"`
}

// Timestamp は投稿日時を返す。APIの値はUNIX秒。
func (p Post) Timestamp() time.Time {
	return time.Unix(p.TimestampSec, 0).UTC()
}

// IsReblog は親投稿への参照を持つかを返す。
func (p Post) IsReblog() bool {
	return p.ParentPostURL != ""
}

// TrailEntry はリブログトレイルの1エントリ。先頭が元投稿。
type TrailEntry struct {
	Content
	Post struct {
		ID string `json:"id"`
	} `json:"post"`
}

// Layout はブロックの配置情報。
type Layout struct {
	Type        string       `json:"type"`
	Blocks      []int        `json:"blocks,omitempty"`
	Blog        *Blog        `json:"blog,omitempty"`
	Attribution *Attribution `json:"attribution,omitempty"`
}

// Attribution はレイアウトの帰属先。
type Attribution struct {
	Type string `json:"type"`
	Blog *Blog  `json:"blog,omitempty"`
}

// Asker は質問者のブログ名を返す。匿名の場合は空文字列。
func (l Layout) Asker() string {
	if l.Attribution != nil && l.Attribution.Blog != nil && l.Attribution.Blog.Name != "" {
		return l.Attribution.Blog.Name
	}
	if l.Blog != nil {
		return l.Blog.Name
	}
	return ""
}

// Contains はブロック番号がこのレイアウトに含まれるかを返す。
func (l Layout) Contains(index int) bool {
	for _, b := range l.Blocks {
		if b == index {
			return true
		}
	}
	return false
}

// Block はtypeを判別子とするコンテンツブロックの判別共用体。
// Typeに対応するフィールドのみが非nilとなる。未知の種別はすべてnil。
type Block struct {
	Type  string
	Text  *TextBlock
	Image *ImageBlock
	Link  *LinkBlock
	Audio *MediaBlock
	Video *MediaBlock
}

// TextBlock はテキストブロック。
type TextBlock struct {
	Text       string              `json:"text"`
	Subtype    string              `json:"subtype,omitempty"`
	Formatting []markup.FormatSpan `json:"formatting,omitempty"`
}

// MediaObject は画像・音声・動画ファイルの情報。
type MediaObject struct {
	URL    string       `json:"url"`
	Type   string       `json:"type,omitempty"`
	Width  int          `json:"width,omitempty"`
	Height int          `json:"height,omitempty"`
	Poster *MediaObject `json:"poster,omitempty"`
}

// ImageBlock は画像ブロック。mediaは解像度違いの候補で、先頭を使う。
type ImageBlock struct {
	Media   []MediaObject `json:"media"`
	AltText string        `json:"alt_text,omitempty"`
}

// LinkBlock はリンクブロック。
type LinkBlock struct {
	URL         string        `json:"url"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Author      string        `json:"author,omitempty"`
	Poster      []MediaObject `json:"poster,omitempty"`
}

// MediaBlock は音声・動画ブロック。
type MediaBlock struct {
	URL      string        `json:"url,omitempty"`
	Provider string        `json:"provider,omitempty"`
	Media    *MediaObject  `json:"media,omitempty"`
	Poster   []MediaObject `json:"poster,omitempty"`
}

// UnmarshalJSON はtypeフィールドを読んで対応するブロック型にデコードする。
func (b *Block) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	*b = Block{Type: head.Type}

	var target interface{}
	switch head.Type {
	case BlockTypeText:
		b.Text = &TextBlock{}
		target = b.Text
	case BlockTypeImage:
		b.Image = &ImageBlock{}
		target = b.Image
	case BlockTypeLink:
		b.Link = &LinkBlock{}
		target = b.Link
	case BlockTypeAudio:
		b.Audio = &MediaBlock{}
		target = b.Audio
	case BlockTypeVideo:
		b.Video = &MediaBlock{}
		target = b.Video
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s block: %w", head.Type, err)
	}
	return nil
}
