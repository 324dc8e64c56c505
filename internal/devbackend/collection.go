package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/travelgate/pkg/middleware"
)

const (
	// applicationSuffix は申請コレクション名の接尾辞。
	applicationSuffix = "-applications"
	// listPageSize は一覧APIの1ページあたりの件数。
	listPageSize = 25
	// statusPending は作成直後の申請の状態。
	statusPending = "pending"
)

// catalogCollections は読み取り専用のカタログコレクション。
var catalogCollections = map[string]struct{}{
	"travel-packages":    {},
	"esim-products":      {},
	"travel-accessories": {},
}

// reservedKeys は申請データに含めてもクライアントからは設定できないキー。
var reservedKeys = []string{"id", "tracking_id", "status", "attachments", "created_at"}

// filterPattern は等値フィルタのクエリキー（filters[<field>][$eq]）。
var filterPattern = regexp.MustCompile(`^filters\[([A-Za-z0-9_]+)\]\[\$eq\]$`)

// condition はSQLのWHERE句の1条件。
type condition struct {
	expr string
	arg  any
}

// handleCreateApplication は申請を作成するハンドラを返す。
// JSONの {"data": {...}} と、マルチパートの data（JSON文字列）+ files の両方を受け付ける。
func (s *Server) handleCreateApplication() gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := c.Param("collection")
		if !strings.HasSuffix(collection, applicationSuffix) {
			middleware.AbortWithError(c, http.StatusNotFound, "Not Found")
			return
		}

		data, uploaded, ok := s.bindApplication(c)
		if !ok {
			return
		}

		declared, err := declaredAttachments(data)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		// 他のユーザーのアップロードは参照できない
		ctx := c.Request.Context()
		attachments, err := s.ownedUploads(ctx, append(declared, uploaded...), middleware.GetUserID(c))
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "申請の作成に失敗しました")
			return
		}

		appType, _ := data["type"].(string)
		if appType == "" {
			appType = strings.TrimSuffix(collection, applicationSuffix)
		}
		delete(data, "type")
		for _, k := range reservedKeys {
			delete(data, k)
		}

		record, err := s.insertApplication(ctx, collection, appType, data, attachments, middleware.GetUserID(c))
		if err != nil {
			log.Printf("[DevBackend] 申請の作成に失敗: collection=%s, error=%v", collection, err)
			middleware.AbortWithError(c, http.StatusInternalServerError, "申請の作成に失敗しました")
			return
		}
		log.Printf("[DevBackend] 申請を作成しました: collection=%s, tracking_id=%v", collection, record["tracking_id"])
		c.JSON(http.StatusCreated, gin.H{"data": record})
	}
}

// bindApplication はリクエストボディから申請データを取り出す。
// マルチパートの場合は files を保存し、そのIDも返す。失敗時はレスポンスを書き込んでfalseを返す。
func (s *Server) bindApplication(c *gin.Context) (map[string]any, []int64, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "マルチパートフォームの解析に失敗しました")
			return nil, nil, false
		}

		data := map[string]any{}
		if raw := form.Value["data"]; len(raw) > 0 {
			if err := json.Unmarshal([]byte(raw[0]), &data); err != nil {
				middleware.AbortWithError(c, http.StatusBadRequest, "data がJSONではありません")
				return nil, nil, false
			}
		} else {
			middleware.AbortWithError(c, http.StatusBadRequest, `Missing "data" payload in the request body`)
			return nil, nil, false
		}

		files, err := s.saveUploads(c, form.File[uploadField])
		if err != nil {
			s.abortUpload(c, err)
			return nil, nil, false
		}
		ids := make([]int64, 0, len(files))
		for _, f := range files {
			ids = append(ids, f.ID)
		}
		return data, ids, true
	}

	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Data == nil {
		middleware.AbortWithError(c, http.StatusBadRequest, `Missing "data" payload in the request body`)
		return nil, nil, false
	}
	return body.Data, nil, true
}

// errInvalidAttachments は attachments がアップロードIDの配列でないことを表す。
var errInvalidAttachments = errors.New(`"attachments" must be an array of upload ids`)

// declaredAttachments は data.attachments に列挙されたアップロードIDを返す。
// 添付として扱うのはこのキーに明示されたIDだけで、他のフィールドの数値は解釈しない。
func declaredAttachments(data map[string]any) ([]int64, error) {
	raw, ok := data["attachments"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errInvalidAttachments
	}

	ids := make([]int64, 0, len(list))
	for _, e := range list {
		f, ok := e.(float64)
		if !ok {
			return nil, errInvalidAttachments
		}
		id, ok := asID(f)
		if !ok {
			return nil, errInvalidAttachments
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// asID は正の整数値をIDとして返す。
func asID(f float64) (int64, bool) {
	if f <= 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// insertApplication は申請を追跡番号付きで保存し、レスポンス表現を返す。
func (s *Server) insertApplication(ctx context.Context, collection, appType string, data map[string]any, attachments []int64, userID string) (map[string]any, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("申請データのシリアライズに失敗: %w", err)
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("添付IDのシリアライズに失敗: %w", err)
	}

	trackingID := newTrackingID()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (collection, tracking_id, type, status, data, attachments, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		collection, trackingID, appType, statusPending, string(dataJSON), string(attachmentsJSON), userID)
	if err != nil {
		return nil, fmt.Errorf("申請の保存に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("申請IDの取得に失敗: %w", err)
	}

	records, err := s.queryApplications(ctx, collection, []condition{{expr: "id = ?", arg: id}}, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("作成した申請が見つかりません: id=%d", id)
	}
	return records[0], nil
}

// newTrackingID は外部に公開する追跡番号を生成する（例: TG-1A2B3C4D）。
func newTrackingID() string {
	return "TG-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}

// handleListCollection はコレクションの一覧ハンドラを返す。
// 申請コレクションは tracking_id で絞り込む場合を除き認証を要求する。
func (s *Server) handleListCollection() gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := c.Param("collection")
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			middleware.AbortWithError(c, http.StatusBadRequest, "page が不正です")
			return
		}

		filters := parseFilters(c.Request.URL.Query())
		ctx := c.Request.Context()

		var (
			items []map[string]any
			total int
		)
		switch {
		case strings.HasSuffix(collection, applicationSuffix):
			if _, ok := filters["tracking_id"]; !ok && !s.authorized(c) {
				middleware.AbortWithError(c, http.StatusUnauthorized, "Authorizationヘッダーが必要です")
				return
			}
			conds := buildConditions(filters, []string{"id", "tracking_id", "type", "status"})
			total, err = s.count(ctx, "applications", collection, conds)
			if err == nil {
				items, err = s.queryApplications(ctx, collection, conds, listPageSize, (page-1)*listPageSize)
			}
		case isCatalog(collection):
			conds := buildConditions(filters, []string{"id"})
			total, err = s.count(ctx, "catalog_items", collection, conds)
			if err == nil {
				items, err = s.queryCatalog(ctx, collection, conds, listPageSize, (page-1)*listPageSize)
			}
		default:
			middleware.AbortWithError(c, http.StatusNotFound, "Not Found")
			return
		}
		if err != nil {
			log.Printf("[DevBackend] 一覧の取得に失敗: collection=%s, error=%v", collection, err)
			middleware.AbortWithError(c, http.StatusInternalServerError, "一覧の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": items,
			"meta": gin.H{
				"pagination": gin.H{
					"page":      page,
					"pageSize":  listPageSize,
					"pageCount": pageCount(total, listPageSize),
					"total":     total,
				},
			},
		})
	}
}

// authorized はリクエストが有効なアクセストークンを持つかどうかを返す。
func (s *Server) authorized(c *gin.Context) bool {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	_, err := middleware.ParseJWT(s.cfg.JWTSecret, token)
	return err == nil
}

// isCatalog はカタログコレクションかどうかを返す。
func isCatalog(collection string) bool {
	_, ok := catalogCollections[collection]
	return ok
}

// parseFilters はクエリから等値フィルタを取り出す。
func parseFilters(query map[string][]string) map[string]string {
	filters := make(map[string]string)
	for key, values := range query {
		m := filterPattern.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		filters[m[1]] = values[0]
	}
	return filters
}

// buildConditions はフィルタをSQLの条件に変換する。
// columnsに含まれるフィールドはカラムと、それ以外はJSONのdataと比較する。
func buildConditions(filters map[string]string, columns []string) []condition {
	conds := make([]condition, 0, len(filters))
	for field, value := range filters {
		isColumn := false
		for _, col := range columns {
			if col == field {
				isColumn = true
				break
			}
		}
		if isColumn {
			conds = append(conds, condition{expr: field + " = ?", arg: value})
			continue
		}
		// fieldはfilterPatternで英数字とアンダースコアに限定済み
		conds = append(conds, condition{expr: "json_extract(data, '$." + field + "') = ?", arg: jsonScalar(value)})
	}
	return conds
}

// jsonScalar はクエリ文字列の値をjson_extractの結果と比較できる型に変換する。
func jsonScalar(value string) any {
	switch value {
	case "true":
		return 1
	case "false":
		return 0
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}

// where は条件からWHERE句と引数を組み立てる。
func where(collection string, conds []condition) (string, []any) {
	clauses := []string{"collection = ?"}
	args := []any{collection}
	for _, cond := range conds {
		clauses = append(clauses, cond.expr)
		args = append(args, cond.arg)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// count は条件に一致する件数を返す。tableには固定のテーブル名のみを渡す。
func (s *Server) count(ctx context.Context, table, collection string, conds []condition) (int, error) {
	clause, args := where(collection, conds)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("件数の取得に失敗: %w", err)
	}
	return n, nil
}

// queryApplications は申請を検索してレスポンス表現で返す。
func (s *Server) queryApplications(ctx context.Context, collection string, conds []condition, limit, offset int) ([]map[string]any, error) {
	clause, args := where(collection, conds)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tracking_id, type, status, data, attachments, created_at FROM applications`+clause+
			` ORDER BY id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("申請の検索に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []map[string]any{}
	for rows.Next() {
		var (
			id                                             int64
			trackingID, appType, status, data, attachments string
			createdAt                                      string
		)
		if err := rows.Scan(&id, &trackingID, &appType, &status, &data, &attachments, &createdAt); err != nil {
			return nil, fmt.Errorf("申請の読み取りに失敗: %w", err)
		}

		record := map[string]any{}
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("申請データの変換に失敗: %w", err)
		}
		var ids []int64
		if err := json.Unmarshal([]byte(attachments), &ids); err != nil {
			return nil, fmt.Errorf("添付IDの変換に失敗: %w", err)
		}
		record["id"] = id
		record["tracking_id"] = trackingID
		record["type"] = appType
		record["status"] = status
		record["attachments"] = ids
		record["created_at"] = createdAt
		records = append(records, record)
	}
	return records, rows.Err()
}

// queryCatalog はカタログを検索してレスポンス表現で返す。
func (s *Server) queryCatalog(ctx context.Context, collection string, conds []condition, limit, offset int) ([]map[string]any, error) {
	clause, args := where(collection, conds)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM catalog_items`+clause+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("カタログの検索に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []map[string]any{}
	for rows.Next() {
		var (
			id   int64
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("カタログの読み取りに失敗: %w", err)
		}
		item := map[string]any{}
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("カタログデータの変換に失敗: %w", err)
		}
		item["id"] = id
		items = append(items, item)
	}
	return items, rows.Err()
}

// pageCount は総件数から総ページ数を返す。0件でも1ページとする。
func pageCount(total, size int) int {
	if total == 0 {
		return 1
	}
	return (total + size - 1) / size
}
