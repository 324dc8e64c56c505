package cli

import (
	"github.com/spf13/cobra"
)

// packagesCmd は旅行パッケージ一覧のコマンドを生成する。
func packagesCmd(a *app) *cobra.Command {
	var featured bool
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "旅行パッケージの一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.gw.TravelPackages(cmd.Context(), featured)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().BoolVar(&featured, "featured", false, "おすすめのパッケージのみ表示する")
	return cmd
}

// esimsCmd はeSIM商品一覧のコマンドを生成する。
func esimsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "esims",
		Short: "eSIM商品の一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.gw.ESIMProducts(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), items)
		},
	}
}

// accessoriesCmd はトラベル用品一覧のコマンドを生成する。
func accessoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accessories",
		Short: "トラベル用品の一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.gw.TravelAccessories(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), items)
		},
	}
}

// clientsCmd は顧客一覧のコマンドを生成する。
func clientsCmd(a *app) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "顧客一覧の指定ページを表示する（要ログイン）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.gw.Clients(cmd.Context(), page)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "ページ番号（1始まり）")
	return cmd
}

// dashboardCmd は管理画面の統計のコマンドを生成する。
func dashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "管理画面の統計を表示する（要ログイン）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.gw.DashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), stats)
		},
	}
}
