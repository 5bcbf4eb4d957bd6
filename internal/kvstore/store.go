// Package kvstore はカーソルとプロフィールキャッシュを永続化するキー・バリューストアを提供する。
package kvstore

import (
	"context"
	"fmt"
)

// Store は文字列キー・文字列値の永続化インターフェース。
type Store interface {
	// Get はキーに対応する値を返す。存在しない場合はfalseを返す。
	Get(ctx context.Context, key string) (string, bool, error)
	// Set はキーに値を保存する。既存の値は上書きされる。
	Set(ctx context.Context, key, value string) error
}

// Key はフィード識別子で名前空間化したキーを返す。
// 同じ種別のフィードを複数設定した場合でもキーが衝突しない。
func Key(feedKey, name string) string {
	return fmt.Sprintf("%s:%s", feedKey, name)
}
