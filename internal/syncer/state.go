package syncer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/timelinesync/internal/kvstore"
)

// CursorKey はフィードのカーソルを保存するキーを返す。
func CursorKey(feedKey string) string {
	return kvstore.Key(feedKey, "cursor")
}

// LoadState はKVストアから同期状態を読み込む。未保存の場合はゼロ値を返す。
// カーソルはエポックからのミリ秒の10進文字列。
func LoadState(ctx context.Context, store kvstore.Store, feedKey string) (State, error) {
	raw, ok, err := store.Get(ctx, CursorKey(feedKey))
	if err != nil {
		return State{}, fmt.Errorf("カーソルの読み込みに失敗: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return State{}, nil
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return State{}, fmt.Errorf("カーソルの値が不正です (%q): %w", raw, err)
	}
	return State{Cursor: time.UnixMilli(ms).UTC()}, nil
}

// SaveState は同期状態をKVストアに保存する。カーソルがゼロ値の場合は何もしない。
func SaveState(ctx context.Context, store kvstore.Store, feedKey string, state State) error {
	if state.Cursor.IsZero() {
		return nil
	}
	value := strconv.FormatInt(state.Cursor.UnixMilli(), 10)
	if err := store.Set(ctx, CursorKey(feedKey), value); err != nil {
		return fmt.Errorf("カーソルの保存に失敗: %w", err)
	}
	return nil
}
