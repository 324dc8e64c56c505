package resource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Getter はGETリクエストを送信してJSONをデシリアライズするクライアント。
// httpclient.Client がこれを満たす。
type Getter interface {
	GetJSON(ctx context.Context, path string, result any) error
}

// listEnvelope は一覧エンドポイントのレスポンス形式。
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// GetOne は指定パスのレスポンスボディをそのままTとして取得する。
// 実行時のスキーマ検証は行わない。
func GetOne[T any](ctx context.Context, g Getter, path string) (T, error) {
	var v T
	if err := g.GetJSON(ctx, path, &v); err != nil {
		return v, err
	}
	return v, nil
}

// GetMany は {"data": [...]} 形式の一覧を取得する。
// dataが存在しない場合は空のスライスを返す。
func GetMany[T any](ctx context.Context, g Getter, path string) ([]T, error) {
	var env listEnvelope[T]
	if err := g.GetJSON(ctx, path, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []T{}, nil
	}
	return env.Data, nil
}

// WithQuery はパスにクエリ断片を連結する。
// パスに既にクエリがある場合は "&" で、なければ "?" で繋ぐ。空の断片は無視する。
func WithQuery(path string, fragments ...string) string {
	var parts []string
	for _, f := range fragments {
		if f = strings.TrimLeft(f, "?&"); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(parts, "&")
}

// Eq は等値フィルタの断片（filters[<field>][$eq]=<value>）を返す。値はエスケープする。
func Eq(field, value string) string {
	return fmt.Sprintf("filters[%s][$eq]=%s", field, url.QueryEscape(value))
}

// Populate は関連展開の断片（populate=<field>）を返す。
func Populate(field string) string {
	return "populate=" + field
}

// PageParam はページ番号の断片（page=<n>）を返す。
func PageParam(page int) string {
	return "page=" + strconv.Itoa(page)
}
