package security

import (
	"strings"
	"testing"
)

func TestSanitize_KeepsNormalizedMarkup(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"段落", "<p>こんにちは</p>", "<p>こんにちは</p>"},
		{"太字と斜体", "<p><b>Hell<i>o wor</i>ld</b></p>", "<p><b>Hell<i>o wor</i>ld</b></p>"},
		{"質問ブロック", "<blockquote><p><strong>alice</strong> asked:</p><p>元気?</p></blockquote>",
			"<blockquote><p><strong>alice</strong> asked:</p><p>元気?</p></blockquote>"},
		{"空文字列", "", ""},
		{"プレーンテキスト", "テキストのみ", "テキストのみ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_TagLinks(t *testing.T) {
	s := NewSanitizer()

	got := s.Sanitize(`<p><a href="https://www.tumblr.com/tagged/go%20lang">#go lang</a> </p>`)

	for _, want := range []string{`href="https://www.tumblr.com/tagged/go%20lang"`, `target="_blank"`, "noopener", "noreferrer", "#go lang"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, expected to contain %q", got, want)
		}
	}
}

func TestSanitize_RemovesDangerousContent(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
		wantKeep   string
	}{
		{"script", `<p>本文</p><script>alert('xss')</script>`, []string{"<script", "alert"}, "本文"},
		{"iframe", `<p>本文</p><iframe src="https://evil.example"></iframe>`, []string{"<iframe", "evil"}, "本文"},
		{"style", `<p>本文</p><style>body{display:none}</style>`, []string{"<style", "display"}, "本文"},
		{"div", `<div><p>本文</p></div>`, []string{"<div"}, "<p>本文</p>"},
		{"onclick", `<p onclick="alert(1)">本文</p>`, []string{"onclick", "alert"}, "本文"},
		{"onerror", `<img src="https://example.com/a.png" onerror="alert(1)">`, []string{"onerror"}, "https://example.com/a.png"},
		{"javascript href", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}, "x"},
		{"http img", `<img src="http://example.com/a.png">`, []string{"http://example.com/a.png"}, ""},
		{"data img", `<img src="data:image/png;base64,abc">`, []string{"data:image"}, ""},
		{"相対リンク", `<a href="/alice/status/1">x</a>`, []string{"/alice/status/1"}, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
			if !strings.Contains(got, tt.wantKeep) {
				t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, tt.wantKeep)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewSanitizer()
	input := `<p><b>a</b> <a href="https://example.com">b</a></p><img src="https://example.com/x.png" alt="x">`

	once := s.Sanitize(input)
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("2回目のサニタイズで結果が変わった:\n1回目: %q\n2回目: %q", once, twice)
	}
}
