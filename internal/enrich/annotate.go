package enrich

import (
	"regexp"
	"strings"

	"github.com/hitoshi/timelinesync/internal/model"
)

var retweetPattern = regexp.MustCompile(`(?i)^(?:RT|Reposted) by @([A-Za-z0-9_]+)`)

// DetectRetweet はタイトルが "RT by @handle:" 形式であればリツイートしたハンドルを返す。
func DetectRetweet(title string) (string, bool) {
	m := retweetPattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RetweetAnnotation はリツイートしたアカウントを示す注釈を返す。
func RetweetAnnotation(siteURL, handle string) model.Annotation {
	return model.Annotation{
		Text: "Retweeted by @" + handle,
		URI:  model.SiteBase(siteURL) + "/" + handle,
	}
}

// ReblogAnnotation はリブログしたブログを示す注釈を返す。
func ReblogAnnotation(rebloggerName, avatarURI, postURI string) model.Annotation {
	return model.Annotation{
		Text: "Reblogged by " + rebloggerName,
		Icon: avatarURI,
		URI:  postURI,
	}
}
