// Package markup はコードポイント単位のオフセットで表された書式指定をインラインマークアップに変換する。
package markup

// SpanKind は書式の種類。
type SpanKind string

const (
	SpanBold   SpanKind = "bold"
	SpanItalic SpanKind = "italic"
)

// FormatSpan は元テキストのコードポイント列に対する半開区間 [Start, End) の書式指定。
type FormatSpan struct {
	Kind  SpanKind `json:"type"`
	Start int      `json:"start"`
	End   int      `json:"end"`
}

type markerPair struct {
	open  []rune
	close []rune
}

var markers = map[SpanKind]markerPair{
	SpanBold:   {open: []rune("<b>"), close: []rune("</b>")},
	SpanItalic: {open: []rune("<i>"), close: []rune("</i>")},
}

// InsertSpans はspansを与えられた順に処理し、開始・終了マーカーを挿入したテキストを返す。
//
// 各spanについて、まず End+挿入済みオフセット の位置に終了マーカーを挿入し、
// 次に Start+挿入済みオフセット の位置に開始マーカーを挿入する。
// spansは並べ替えない。Startの昇順かつ交差しない場合にのみ正しく入れ子になり、
// それ以外の入力では順序に依存した出力になる。
// 未知の種類は無視し、挿入位置は現在の列の範囲に丸める。
func InsertSpans(text string, spans []FormatSpan) string {
	if len(spans) == 0 {
		return text
	}

	runes := []rune(text)
	insertedOffset := 0
	for _, span := range spans {
		m, ok := markers[span.Kind]
		if !ok {
			continue
		}
		runes = insertAt(runes, span.End+insertedOffset, m.close)
		runes = insertAt(runes, span.Start+insertedOffset, m.open)
		insertedOffset += len(m.open) + len(m.close)
	}
	return string(runes)
}

func insertAt(runes []rune, index int, marker []rune) []rune {
	if index < 0 {
		index = 0
	}
	if index > len(runes) {
		index = len(runes)
	}
	out := make([]rune, 0, len(runes)+len(marker))
	out = append(out, runes[:index]...)
	out = append(out, marker...)
	return append(out, runes[index:]...)
}
