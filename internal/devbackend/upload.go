package devbackend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/travelgate/pkg/middleware"
)

// uploadField はアップロードファイルを格納するフォームフィールド名。
const uploadField = "files"

// errFileTooLarge はファイルサイズが上限を超えていることを表す。
var errFileTooLarge = errors.New("ファイルサイズが上限を超えています")

// uploadedFile はアップロード済みファイルのレスポンス表現。
type uploadedFile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// handleUpload はファイルアップロードのハンドラを返す。
// files フィールドの各ファイルを保存し、保存した順に配列で返す。
func (s *Server) handleUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "マルチパートフォームの解析に失敗しました")
			return
		}
		headers := form.File[uploadField]
		if len(headers) == 0 {
			middleware.AbortWithError(c, http.StatusBadRequest, "Files are empty")
			return
		}

		files, err := s.saveUploads(c, headers)
		if err != nil {
			s.abortUpload(c, err)
			return
		}
		c.JSON(http.StatusCreated, files)
	}
}

// abortUpload は saveUploads のエラーをレスポンスに変換する。
func (s *Server) abortUpload(c *gin.Context, err error) {
	if errors.Is(err, errFileTooLarge) {
		middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("[DevBackend] アップロードに失敗: %v", err)
	middleware.AbortWithError(c, http.StatusInternalServerError, "ファイルの保存に失敗しました")
}

// saveUploads はファイルをアップロードディレクトリに保存し、uploadsテーブルに記録する。
// 1件でも上限を超えるファイルがあれば、どれも保存しない。
func (s *Server) saveUploads(c *gin.Context, headers []*multipart.FileHeader) ([]uploadedFile, error) {
	for _, fh := range headers {
		if fh.Size > s.cfg.MaxFileSize {
			return nil, fmt.Errorf("%w（最大%dバイト）: %s", errFileTooLarge, s.cfg.MaxFileSize, fh.Filename)
		}
	}

	userID := middleware.GetUserID(c)
	files := make([]uploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := s.saveUpload(c, userID, fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// saveUpload はファイルを1件保存する。保存名はUUIDに元の拡張子を付けたもの。
func (s *Server) saveUpload(c *gin.Context, userID string, fh *multipart.FileHeader) (uploadedFile, error) {
	storedName := uuid.New().String() + strings.ToLower(filepath.Ext(fh.Filename))
	if err := c.SaveUploadedFile(fh, filepath.Join(s.cfg.UploadDir, storedName)); err != nil {
		return uploadedFile{}, fmt.Errorf("ファイルの書き込みに失敗: %w", err)
	}

	mime := fh.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	id, err := s.insertUpload(c.Request.Context(), fh.Filename, storedName, mime, fh.Size, userID)
	if err != nil {
		return uploadedFile{}, err
	}

	log.Printf("[DevBackend] ファイルを保存しました: id=%d, name=%s, size=%d", id, fh.Filename, fh.Size)
	return uploadedFile{
		ID:   id,
		Name: fh.Filename,
		Mime: mime,
		Size: fh.Size,
		URL:  "/uploads/" + storedName,
	}, nil
}

// insertUpload はuploadsテーブルにレコードを追加してIDを返す。
func (s *Server) insertUpload(ctx context.Context, name, storedName, mime string, size int64, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (name, stored_name, mime, size, created_by) VALUES (?, ?, ?, ?, ?)`,
		name, storedName, mime, size, userID)
	if err != nil {
		return 0, fmt.Errorf("アップロードの記録に失敗: %w", err)
	}
	return res.LastInsertId()
}

// ownedUploads は指定IDのうち、userIDがアップロードしたものだけを重複なしで返す。
func (s *Server) ownedUploads(ctx context.Context, ids []int64, userID string) ([]int64, error) {
	found := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM uploads WHERE id = ? AND created_by = ?`, id, userID).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("アップロードの確認に失敗: %w", err)
		}
		if n > 0 {
			found = append(found, id)
		}
	}
	return found, nil
}
