// Package catalog は旅行パッケージ・eSIM・トラベル用品の一覧と、管理画面向けの顧客一覧・統計を取得する。
package catalog

import (
	"context"

	"github.com/nao1215/travelgate/pkg/resource"
)

// Media はアップロード済みの画像。
type Media struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// TravelPackage は旅行パッケージ。
type TravelPackage struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Featured    bool    `json:"featured"`
	CoverImage  *Media  `json:"cover_image,omitempty"`
}

// ESIMProduct はeSIM商品。
type ESIMProduct struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Country string  `json:"country"`
	DataGB  float64 `json:"data_gb"`
	Days    int     `json:"days"`
	Price   float64 `json:"price"`
	Image   *Media  `json:"image,omitempty"`
}

// TravelAccessory はトラベル用品。
type TravelAccessory struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Images []Media `json:"images,omitempty"`
}

// Client は管理画面に表示する顧客。
type Client struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

// DashboardStats は管理画面の統計。
type DashboardStats struct {
	Clients struct {
		Total        int `json:"total"`
		NewThisWeek  int `json:"new_this_week"`
		NewThisMonth int `json:"new_this_month"`
	} `json:"clients"`
	Applications struct {
		Total      int `json:"total"`
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
	} `json:"applications"`
	Content struct {
		Posts          int `json:"posts"`
		TravelPackages int `json:"travel_packages"`
	} `json:"content"`
	Products struct {
		Total    int `json:"total"`
		ESIMs    int `json:"esims"`
		Services int `json:"services"`
	} `json:"products"`
	Orders struct {
		Total     int `json:"total"`
		Pending   int `json:"pending"`
		Completed int `json:"completed"`
	} `json:"orders"`
}

// Reader はカタログを取得する。
type Reader struct {
	g resource.Getter
}

// NewReader は新しいReaderを生成する。
func NewReader(g resource.Getter) *Reader {
	return &Reader{g: g}
}

// TravelPackages は旅行パッケージの一覧を取得する。featuredOnlyがtrueの場合はおすすめのみを返す。
func (r *Reader) TravelPackages(ctx context.Context, featuredOnly bool) ([]TravelPackage, error) {
	path := resource.WithQuery("travel-packages", resource.Populate("cover_image"))
	if featuredOnly {
		path = resource.WithQuery(path, resource.Eq("featured", "true"))
	}
	return resource.GetMany[TravelPackage](ctx, r.g, path)
}

// ESIMProducts はeSIM商品の一覧を取得する。
func (r *Reader) ESIMProducts(ctx context.Context) ([]ESIMProduct, error) {
	return resource.GetMany[ESIMProduct](ctx, r.g, resource.WithQuery("esim-products", resource.Populate("image")))
}

// TravelAccessories はトラベル用品の一覧を取得する。
func (r *Reader) TravelAccessories(ctx context.Context) ([]TravelAccessory, error) {
	return resource.GetMany[TravelAccessory](ctx, r.g, resource.WithQuery("travel-accessories", resource.Populate("images")))
}

// clientsEnvelope は顧客一覧のレスポンス形式。
type clientsEnvelope struct {
	Clients    []Client `json:"clients"`
	Pagination struct {
		Page  int `json:"page"`
		Pages int `json:"pages"`
	} `json:"pagination"`
}

// Clients は顧客一覧の指定ページを取得する。ページング情報はページ番号と総ページ数から算出する。
func (r *Reader) Clients(ctx context.Context, page int) (*resource.Paginated[Client], error) {
	env, err := resource.GetOne[clientsEnvelope](ctx, r.g, resource.WithQuery("clients", resource.PageParam(page)))
	if err != nil {
		return nil, err
	}

	number := env.Pagination.Page
	if number == 0 {
		number = page
	}
	items := env.Clients
	if items == nil {
		items = []Client{}
	}
	return &resource.Paginated[Client]{Items: items, Page: resource.NewPage(number, env.Pagination.Pages)}, nil
}

// DashboardStats は管理画面の統計を取得する。
func (r *Reader) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	env, err := resource.GetOne[struct {
		Stats DashboardStats `json:"stats"`
	}](ctx, r.g, "admin/dashboard")
	if err != nil {
		return nil, err
	}
	return &env.Stats, nil
}
