package resource

import "context"

// Page はページング情報。
// HasNext は Number < TotalPages のとき、HasPrev は Number > 1 のときに限りtrueになる。
type Page struct {
	// Number は現在のページ番号（1始まり）。
	Number int `json:"number"`
	// TotalPages は総ページ数。
	TotalPages int `json:"total_pages"`
	// HasNext は次のページが存在するかどうか。
	HasNext bool `json:"has_next"`
	// HasPrev は前のページが存在するかどうか。
	HasPrev bool `json:"has_prev"`
}

// NewPage はページ番号と総ページ数からPageを生成する。
// 空の一覧も1ページとして数えるため、1未満の総ページ数は1に揃える。
func NewPage(number, totalPages int) Page {
	totalPages = max(totalPages, 1)
	return Page{
		Number:     number,
		TotalPages: totalPages,
		HasNext:    number < totalPages,
		HasPrev:    number > 1,
	}
}

// Paginated はページング付きの一覧。
type Paginated[T any] struct {
	// Items は現在のページの要素。
	Items []T `json:"items"`
	// Page はページング情報。
	Page Page `json:"page"`
}

// paginatedEnvelope はページング付き一覧のレスポンス形式。
// meta.pagination（page/pageCount）と、トップレベルのpagination（page/pages）の両方を受け付ける。
type paginatedEnvelope[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		Pagination *struct {
			Page      int `json:"page"`
			PageCount int `json:"pageCount"`
		} `json:"pagination"`
	} `json:"meta"`
	Pagination *struct {
		Page  int `json:"page"`
		Pages int `json:"pages"`
	} `json:"pagination"`
}

// GetPaginated は指定ページの一覧を取得する。
// pageは1始まりで、1未満を渡した場合のサーバーの挙動は未定義（クライアント側では検証しない）。
// サーバーが返すhas_next/has_prevは使わず、ページ番号と総ページ数から算出する。
func GetPaginated[T any](ctx context.Context, g Getter, path string, page int) (*Paginated[T], error) {
	var env paginatedEnvelope[T]
	if err := g.GetJSON(ctx, WithQuery(path, PageParam(page)), &env); err != nil {
		return nil, err
	}

	number, total := page, 1
	switch {
	case env.Meta.Pagination != nil:
		number, total = env.Meta.Pagination.Page, env.Meta.Pagination.PageCount
	case env.Pagination != nil:
		number, total = env.Pagination.Page, env.Pagination.Pages
	}
	if number == 0 {
		number = page
	}

	items := env.Data
	if items == nil {
		items = []T{}
	}
	return &Paginated[T]{Items: items, Page: NewPage(number, total)}, nil
}
