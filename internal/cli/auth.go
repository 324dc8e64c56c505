package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/travelgate/internal/auth"
	"github.com/spf13/cobra"
)

// loginCmd はログインコマンドを生成する。
func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "メールアドレスとパスワードでログインする",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.gw.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), s.User)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "メールアドレス")
	cmd.Flags().StringVar(&password, "password", "", "パスワード")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// registerCmd はユーザー登録コマンドを生成する。
func registerCmd(a *app) *cobra.Command {
	var req auth.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "ユーザーを作成してログインする",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.gw.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), s.User)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "メールアドレス")
	cmd.Flags().StringVar(&req.Password, "password", "", "パスワード")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "名")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "姓")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "電話番号")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// logoutCmd はログアウトコマンドを生成する。
func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "保存されているクレデンシャルを破棄する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.gw.Logout(cmd.Context()); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), map[string]bool{"authenticated": false})
		},
	}
}

// statusCmd はログイン状態を表示するコマンドを生成する。
func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "ログイン状態を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.print(cmd.OutOrStdout(), map[string]any{
				"authenticated": a.gw.Authenticated(),
				"base_url":      a.cfg.API.BaseURL,
			})
		},
	}
}

// profileCmd はプロフィール更新コマンドを生成する。
func profileCmd(a *app) *cobra.Command {
	var (
		userID string
		sets   []string
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "ユーザーのプロフィール情報を更新する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metadata, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			u, err := a.gw.UpdateProfile(cmd.Context(), userID, metadata)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "更新するユーザーのID")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "更新する項目（key=value、複数指定可）")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

// passwordCmd はパスワード変更コマンドを生成する。
func passwordCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "ログイン中のユーザーのパスワードを変更する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.gw.ChangePassword(cmd.Context(), password)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVar(&password, "new", "", "新しいパスワード")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

// errInvalidAssignment は key=value 形式でない指定を表す。
var errInvalidAssignment = errors.New("key=value の形式で指定してください")

// parseAssignments は key=value の並びをmapに変換する。
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidAssignment, p)
		}
		out[k] = v
	}
	return out, nil
}
