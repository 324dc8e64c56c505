// 開発用バックエンドのエントリポイント。
// ID・コンテンツAPIをローカルで提供し、travelgateクライアントの動作確認に使う。
package main

import (
	"log"

	"github.com/nao1215/travelgate/internal/devbackend"
)

func main() {
	cfg := devbackend.ConfigFromEnv()

	server, err := devbackend.NewServer(cfg)
	if err != nil {
		log.Fatalf("開発用バックエンドの初期化に失敗: %v", err)
	}
	defer func() { _ = server.Close() }()

	if err := server.Run(); err != nil {
		log.Fatalf("開発用バックエンドの起動に失敗: %v", err)
	}
}
