// Package cli はtravelgateのコマンドラインインターフェースを提供する。
// 各サブコマンドはGatewayの操作を1つずつ呼び出し、結果をJSONまたはYAMLで出力する。
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/nao1215/travelgate/internal/config"
	"github.com/nao1215/travelgate/internal/gateway"
	"github.com/nao1215/travelgate/pkg/httpclient"
	"github.com/nao1215/travelgate/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// app はコマンドの実行中に共有する状態。
type app struct {
	cfg      config.Config
	gw       *gateway.Gateway
	registry *prometheus.Registry
	closer   io.Closer
}

// globalFlags はすべてのコマンドに共通のフラグ。
type globalFlags struct {
	configPath  string
	baseURL     string
	output      string
	showMetrics bool
	verbose     bool
}

// newRootCommand はルートコマンドと、実行中に共有する状態を生成する。
func newRootCommand() (*cobra.Command, *app, *globalFlags) {
	var (
		flags = &globalFlags{}
		a     = &app{}
	)

	root := &cobra.Command{
		Use:           "travelgate",
		Short:         "旅行予約サイトのバックエンドを操作するクライアント",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !flags.verbose {
				log.SetOutput(io.Discard)
			}
			return a.init(cmd.Context(), *flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "設定ファイルのパス（デフォルト: ./travelgate.yaml）")
	pf.StringVar(&flags.baseURL, "base-url", "", "バックエンドのベースURL（api.base_url を上書き）")
	pf.StringVarP(&flags.output, "output", "o", "", "出力形式 json|yaml（output.format を上書き）")
	pf.BoolVar(&flags.showMetrics, "metrics", false, "終了時にリクエストのメトリクスを標準エラー出力に書き出す")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "ログを標準エラー出力に書き出す")

	root.AddCommand(
		loginCmd(a), registerCmd(a), logoutCmd(a), statusCmd(a), profileCmd(a), passwordCmd(a),
		packagesCmd(a), esimsCmd(a), accessoriesCmd(a), clientsCmd(a), dashboardCmd(a),
		uploadCmd(a), submitCmd(a), trackCmd(a),
	)
	return root, a, flags
}

// Run は引数を解釈してコマンドを実行する。
// コマンドが失敗した場合も、メトリクスの書き出しとセッションの後始末は行う。
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, a, flags := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.finish(stderr, flags.showMetrics))
}

// Execute はプロセスの引数でコマンドを実行する。
func Execute(ctx context.Context) error {
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// init は設定を読み込み、セッションとGatewayを準備する。
func (a *app) init(ctx context.Context, flags globalFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.baseURL != "" {
		cfg.API.BaseURL = flags.baseURL
	}
	if flags.output != "" {
		cfg.Output.Format = flags.output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, closer, err := openStore(ctx, cfg.Session)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if cfg.API.RateLimit.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.API.RateLimit.RPS), max(cfg.API.RateLimit.Burst, 1))
	}

	a.cfg = cfg
	a.closer = closer
	a.registry = prometheus.NewRegistry()
	a.gw = gateway.New(gateway.Options{
		BaseURL:     cfg.API.BaseURL,
		IdentityURL: cfg.IdentityURL(),
		AnonKey:     cfg.Identity.AnonKey,
		RedirectURL: cfg.Identity.RedirectURL,
		Timeout:     cfg.API.Timeout,
		RateLimit:   limiter,
		Metrics:     httpclient.NewMetrics(a.registry),
	}, store)
	return nil
}

// openStore は設定に応じたセッションストアを開く。
// 戻り値のio.Closerは後始末が不要な場合はnilになる。
func openStore(ctx context.Context, c config.SessionConfig) (*session.Store, io.Closer, error) {
	switch c.Backend {
	case config.SessionMemory:
		return session.NewMemory(), nil, nil
	case config.SessionFile:
		store, err := session.Open(ctx, session.NewFilePersister(c.Path))
		return store, nil, err
	case config.SessionRedis:
		p, err := session.NewRedisPersister(ctx, c.RedisURL, c.Key, c.TTL)
		if err != nil {
			return nil, nil, err
		}
		store, err := session.Open(ctx, p)
		if err != nil {
			_ = p.Close()
			return nil, nil, err
		}
		return store, p, nil
	default:
		return nil, nil, fmt.Errorf("session.backend が不正です: %q", c.Backend)
	}
}

// writeMetrics は記録したメトリクスをテキスト形式で書き出す。
func (a *app) writeMetrics(w io.Writer) error {
	if a.registry == nil {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("メトリクスの収集に失敗: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("メトリクスの書き出しに失敗: %w", err)
		}
	}
	return nil
}

// finish はコマンドの終了時に呼ばれ、メトリクスを書き出してから接続を閉じる。
func (a *app) finish(w io.Writer, showMetrics bool) error {
	var errs []error
	if showMetrics {
		errs = append(errs, a.writeMetrics(w))
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

// close はセッションの永続化先との接続を閉じる。
func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
