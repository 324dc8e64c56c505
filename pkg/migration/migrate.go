// Package migration はSQLiteデータベースのスキーマを埋め込みSQLファイルから構築する。
// 適用状態は schema_migrations テーブルで管理する。
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"slices"
	"strconv"
	"strings"
)

// upSuffix は適用するSQLファイルの接尾辞。
const upSuffix = ".up.sql"

// ErrDuplicateVersion は同じバージョン番号のファイルが複数あることを表す。
var ErrDuplicateVersion = errors.New("マイグレーションのバージョンが重複しています")

// File は1つのマイグレーションファイル。
type File struct {
	// Version はファイル名の先頭の数値（000001_init.up.sql なら1）。
	Version int
	// Name はバージョンより後ろの名前（000001_init.up.sql なら init）。
	Name string
	path string
}

// String は 000001_init の形式で返す。
func (f File) String() string {
	return fmt.Sprintf("%06d_%s", f.Version, f.Name)
}

// Run は未適用のマイグレーションをバージョン順に適用し、適用したファイルを返す。
// 各ファイルは1トランザクションで適用し、失敗した時点で中断する。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) ([]File, error) {
	pending, err := Pending(ctx, db, fsys, dir)
	if err != nil {
		return nil, err
	}

	applied := make([]File, 0, len(pending))
	for _, f := range pending {
		if err := apply(ctx, db, fsys, f); err != nil {
			return applied, fmt.Errorf("マイグレーション %s の適用に失敗: %w", f, err)
		}
		log.Printf("[Migration] %s を適用しました", f)
		applied = append(applied, f)
	}
	return applied, nil
}

// Pending は未適用のマイグレーションをバージョン順に返す。管理テーブルがなければ作成する。
func Pending(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) ([]File, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	files, err := collect(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	return slices.DeleteFunc(files, func(f File) bool { return applied[f.Version] }), nil
}

// appliedVersions は適用済みのバージョンを返す。
func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// collect はディレクトリ直下の *.up.sql をバージョン順に返す。
// 数値で始まらないファイルは無視する。
func collect(fsys fs.FS, dir string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}
		prefix, name, ok := strings.Cut(strings.TrimSuffix(entry.Name(), upSuffix), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		files = append(files, File{Version: version, Name: name, path: path.Join(dir, entry.Name())})
	}

	slices.SortFunc(files, func(a, b File) int { return a.Version - b.Version })
	for i := 1; i < len(files); i++ {
		if files[i].Version == files[i-1].Version {
			return nil, fmt.Errorf("%w: %s, %s", ErrDuplicateVersion, files[i-1], files[i])
		}
	}
	return files, nil
}

// apply は1つのマイグレーションをトランザクション内で適用する。
func apply(ctx context.Context, db *sql.DB, fsys fs.FS, f File) error {
	content, err := fs.ReadFile(fsys, f.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", f.Version, f.Name); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
