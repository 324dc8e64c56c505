package devbackend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/travelgate/pkg/middleware"
)

// client は顧客のレスポンス表現。
type client struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

// handleListClients は顧客一覧のハンドラを返す。
func (s *Server) handleListClients() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			middleware.AbortWithError(c, http.StatusBadRequest, "page が不正です")
			return
		}

		ctx := c.Request.Context()
		var total int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&total); err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "顧客一覧の取得に失敗しました")
			return
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT id, first_name, last_name, email, phone, country FROM clients ORDER BY id LIMIT ? OFFSET ?`,
			s.cfg.PageSize, (page-1)*s.cfg.PageSize)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "顧客一覧の取得に失敗しました")
			return
		}
		defer func() { _ = rows.Close() }()

		clients := []client{}
		for rows.Next() {
			var cl client
			if err := rows.Scan(&cl.ID, &cl.FirstName, &cl.LastName, &cl.Email, &cl.Phone, &cl.Country); err != nil {
				middleware.AbortWithError(c, http.StatusInternalServerError, "顧客一覧の取得に失敗しました")
				return
			}
			clients = append(clients, cl)
		}
		if err := rows.Err(); err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "顧客一覧の取得に失敗しました")
			return
		}

		pages := pageCount(total, s.cfg.PageSize)
		c.JSON(http.StatusOK, gin.H{
			"clients": clients,
			"pagination": gin.H{
				"page":     page,
				"pages":    pages,
				"total":    total,
				"has_next": page < pages,
				"has_prev": page > 1,
			},
		})
	}
}

// handleDashboard は管理画面の統計のハンドラを返す。
func (s *Server) handleDashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.dashboardStats(c.Request.Context())
		if err != nil {
			log.Printf("[DevBackend] 統計の集計に失敗: %v", err)
			middleware.AbortWithError(c, http.StatusInternalServerError, "統計の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// dashboardStats は各テーブルの件数を集計する。
func (s *Server) dashboardStats(ctx context.Context) (gin.H, error) {
	queries := []struct {
		group, key, query string
	}{
		{"clients", "total", `SELECT COUNT(*) FROM clients`},
		{"clients", "new_this_week", `SELECT COUNT(*) FROM clients WHERE created_at >= datetime('now', '-7 days')`},
		{"clients", "new_this_month", `SELECT COUNT(*) FROM clients WHERE created_at >= datetime('now', '-30 days')`},
		{"applications", "total", `SELECT COUNT(*) FROM applications`},
		{"applications", "pending", `SELECT COUNT(*) FROM applications WHERE status = 'pending'`},
		{"applications", "processing", `SELECT COUNT(*) FROM applications WHERE status = 'processing'`},
		{"applications", "completed", `SELECT COUNT(*) FROM applications WHERE status = 'completed'`},
		{"content", "travel_packages", `SELECT COUNT(*) FROM catalog_items WHERE collection = 'travel-packages'`},
		{"products", "total", `SELECT COUNT(*) FROM catalog_items WHERE collection IN ('esim-products', 'travel-accessories')`},
		{"products", "esims", `SELECT COUNT(*) FROM catalog_items WHERE collection = 'esim-products'`},
	}

	stats := gin.H{}
	for _, q := range queries {
		var n int
		if err := s.db.QueryRowContext(ctx, q.query).Scan(&n); err != nil {
			return nil, fmt.Errorf("%s.%s の集計に失敗: %w", q.group, q.key, err)
		}
		group, ok := stats[q.group].(gin.H)
		if !ok {
			group = gin.H{}
			stats[q.group] = group
		}
		group[q.key] = n
	}
	return stats, nil
}
