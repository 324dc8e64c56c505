package devbackend

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/nao1215/travelgate/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// openDB はSQLiteデータベースを開き、マイグレーションを適用する。
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		// 接続ごとに別のデータベースになるため1本に固定する
		db.SetMaxOpenConns(1)
	}

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}
