package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilePersister はクレデンシャルをローカルファイルに保存する。
// CLIの複数回の実行で同じセッションを使うためのもので、内容は平文のまま保存する。
type FilePersister struct {
	// Path は保存先ファイルのパス。
	Path string
}

// NewFilePersister は指定パスに保存するFilePersisterを生成する。
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Load はファイルからクレデンシャルを読み込む。
func (p *FilePersister) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotPersisted
		}
		return "", fmt.Errorf("セッションファイルの読み込みに失敗: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNotPersisted
	}
	return token, nil
}

// Save はクレデンシャルをファイルに書き込む。所有者のみ読み書き可能なパーミッションで作成する。
func (p *FilePersister) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return fmt.Errorf("セッションディレクトリの作成に失敗: %w", err)
	}
	if err := os.WriteFile(p.Path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("セッションファイルの書き込みに失敗: %w", err)
	}
	return nil
}

// Delete はセッションファイルを削除する。
func (p *FilePersister) Delete(_ context.Context) error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("セッションファイルの削除に失敗: %w", err)
	}
	return nil
}
