// Package model はドメインモデルを定義する。
package model

import "time"

// Post はソースに依存しない正規化済みの投稿を表す。
// Content Normalizerが生フィード項目1件につき1回生成し、以後は変更しない。
type Post struct {
	URI         string       `json:"uri"`
	Timestamp   time.Time    `json:"timestamp"`
	BodyMarkup  string       `json:"body"` // 未サニタイズのHTML
	Author      *Identity    `json:"author,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Identity は投稿者の表示用情報を表す。
type Identity struct {
	DisplayName string `json:"display_name"`
	ProfileURI  string `json:"profile_uri,omitempty"`
	Username    string `json:"username,omitempty"`
	AvatarURI   string `json:"avatar_uri,omitempty"`
}

// AttachmentKind は添付ファイルの種別を表す。
type AttachmentKind string

const (
	// AttachmentKindMedia は画像・音声・動画の添付。
	AttachmentKindMedia AttachmentKind = "media"
	// AttachmentKindLink はリンクプレビューの添付。
	AttachmentKindLink AttachmentKind = "link"
)

// Attachment はMediaとLinkの判別共用体。
// Kindに対応するフィールドのみが非nilとなる。
type Attachment struct {
	Kind  AttachmentKind   `json:"kind"`
	Media *MediaAttachment `json:"media,omitempty"`
	Link  *LinkAttachment  `json:"link,omitempty"`
}

// AspectSize は宣言された幅と高さ。
type AspectSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MediaAttachment は画像・音声・動画の添付を表す。
type MediaAttachment struct {
	URL        string      `json:"url"`
	MimeType   string      `json:"mime_type,omitempty"`
	AspectSize *AspectSize `json:"aspect_size,omitempty"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	AltText    string      `json:"alt_text,omitempty"`
}

// LinkAttachment はリンクプレビューを表す。
type LinkAttachment struct {
	URL          string      `json:"url"`
	Title        string      `json:"title,omitempty"`
	Subtitle     string      `json:"subtitle,omitempty"`
	AuthorName   string      `json:"author_name,omitempty"`
	PreviewImage string      `json:"preview_image,omitempty"`
	AspectSize   *AspectSize `json:"aspect_size,omitempty"`
}

// NewMediaAttachment はMedia種別のAttachmentを生成する。
func NewMediaAttachment(m MediaAttachment) Attachment {
	return Attachment{Kind: AttachmentKindMedia, Media: &m}
}

// NewLinkAttachment はLink種別のAttachmentを生成する。
func NewLinkAttachment(l LinkAttachment) Attachment {
	return Attachment{Kind: AttachmentKindLink, Link: &l}
}

// Annotation は「リブログ」「リツイート」等の注記を表す。
type Annotation struct {
	Text string `json:"text"`
	Icon string `json:"icon,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// ProfileEntry はプロフィールキャッシュの1エントリ。
// アカウントごとに1回だけ生成され、無効化されない。
type ProfileEntry struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// StoredPost は永続化された投稿を表す。
type StoredPost struct {
	ID       string
	FeedKey  string
	Post     Post
	SyncedAt time.Time
}
