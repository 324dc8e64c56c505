// travelgateのコマンドラインクライアントのエントリポイント。
// ログイン、カタログの閲覧、申請の送信と追跡をバックエンドに対して行う。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/travelgate/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		stop()
		os.Exit(1)
	}
}
