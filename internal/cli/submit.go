package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/travelgate/internal/submission"
	"github.com/spf13/cobra"
)

// attachmentFiles はコマンドの実行中に開いた添付ファイル。
type attachmentFiles struct {
	files []*os.File
}

// open はファイルを開いて添付ファイルにする。fieldは申請レコード上のフィールド名。
func (f *attachmentFiles) open(field, path string) (submission.Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		return submission.Attachment{}, fmt.Errorf("添付ファイルのオープンに失敗: %w", err)
	}
	f.files = append(f.files, file)

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return submission.Attachment{
		Field:       field,
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Content:     file,
	}, nil
}

// close は開いたファイルをすべて閉じる。
func (f *attachmentFiles) close() {
	for _, file := range f.files {
		_ = file.Close()
	}
}

// uploadCmd はファイルアップロードのコマンドを生成する。
func uploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "ファイルを1件アップロードしてIDとURLを表示する（要ログイン）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files attachmentFiles
			defer files.close()

			att, err := files.open("", args[0])
			if err != nil {
				return err
			}
			up, err := a.gw.Upload(cmd.Context(), att)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), up)
		},
	}
}

// submitCmd は申請送信のコマンドを生成する。
func submitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "申請を送信する（要ログイン）",
	}
	cmd.AddCommand(submitVisaCmd(a), submitDrivingLicenseCmd(a), submitApplicationCmd(a))
	return cmd
}

// submitVisaCmd はビザ申請のコマンドを生成する。
func submitVisaCmd(a *app) *cobra.Command {
	var (
		sets  []string
		paths []string
	)
	cmd := &cobra.Command{
		Use:   "visa",
		Short: "ビザ申請をフィールドとファイルを1回のリクエストで送信する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			var files attachmentFiles
			defer files.close()
			attachments := make([]submission.Attachment, 0, len(paths))
			for _, p := range paths {
				att, err := files.open("", p)
				if err != nil {
					return err
				}
				attachments = append(attachments, att)
			}

			record, err := a.gw.SubmitVisaApplication(cmd.Context(), fields, attachments)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), record)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "field", nil, "申請の項目（key=value、複数指定可）")
	cmd.Flags().StringArrayVar(&paths, "file", nil, "添付ファイルのパス（複数指定可）")
	return cmd
}

// submitDrivingLicenseCmd は国際運転免許証申請のコマンドを生成する。
func submitDrivingLicenseCmd(a *app) *cobra.Command {
	var (
		applicant                        submission.DrivingLicenseApplication
		paymentStatus                    string
		licenseFront, passport, portrait string
	)
	cmd := &cobra.Command{
		Use:     "idl",
		Aliases: []string{"driving-license"},
		Short:   "国際運転免許証申請を、添付ファイルを先にアップロードしてから送信する",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var files attachmentFiles
			defer files.close()

			var docs submission.DrivingLicenseFiles
			var err error
			if docs.LicenseFront, err = files.open("", licenseFront); err != nil {
				return err
			}
			if docs.PassportPage, err = files.open("", passport); err != nil {
				return err
			}
			if docs.PersonalPhoto, err = files.open("", portrait); err != nil {
				return err
			}

			applicant.PaymentStatus = submission.Status(paymentStatus)
			record, err := a.gw.SubmitDrivingLicenseApplication(cmd.Context(), applicant, docs)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), record)
		},
	}
	cmd.Flags().StringVar(&applicant.FullName, "full-name", "", "申請者の氏名")
	cmd.Flags().StringVar(&applicant.Email, "email", "", "申請者のメールアドレス")
	cmd.Flags().StringVar(&paymentStatus, "payment-status", string(submission.StatusPending), "支払い状況")
	cmd.Flags().StringVar(&licenseFront, "license-front", "", "運転免許証の表面の画像")
	cmd.Flags().StringVar(&passport, "passport-page", "", "パスポートの顔写真ページの画像")
	cmd.Flags().StringVar(&portrait, "personal-photo", "", "本人の顔写真")
	for _, name := range []string{"full-name", "email", "license-front", "passport-page", "personal-photo"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// submitApplicationCmd は任意の種類の申請を事前アップロード方式で送信するコマンドを生成する。
func submitApplicationCmd(a *app) *cobra.Command {
	var (
		endpoint string
		sets     []string
		attaches []string
	)
	cmd := &cobra.Command{
		Use:   "application <type>",
		Short: "添付ファイルを先にアップロードしてから申請レコードを作成する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			var files attachmentFiles
			defer files.close()
			attachments := make([]submission.Attachment, 0, len(attaches))
			for _, pair := range attaches {
				field, path, ok := strings.Cut(pair, "=")
				if !ok || field == "" {
					return fmt.Errorf("%w: %q", errInvalidAssignment, pair)
				}
				att, err := files.open(field, path)
				if err != nil {
					return err
				}
				attachments = append(attachments, att)
			}

			p := a.gw.NewPipeline(submission.Request{
				Type:        args[0],
				Endpoint:    endpoint,
				Fields:      fields,
				Attachments: attachments,
			})
			record, err := p.Run(cmd.Context())
			if err != nil {
				return reportOrphans(cmd.ErrOrStderr(), p, err)
			}
			return a.print(cmd.OutOrStdout(), record)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "申請レコードの作成先（デフォルト: <type>-applications）")
	cmd.Flags().StringArrayVar(&sets, "field", nil, "申請の項目（key=value、複数指定可）")
	cmd.Flags().StringArrayVar(&attaches, "attach", nil, "添付ファイル（field=path、複数指定可）")
	return cmd
}

// reportOrphans は申請レコードから参照されずに残ったアップロード済みファイルを書き出す。
func reportOrphans(w io.Writer, p *submission.Pipeline, err error) error {
	orphans := p.Orphans()
	if len(orphans) == 0 {
		return err
	}
	ids := make([]string, 0, len(orphans))
	for _, o := range orphans {
		ids = append(ids, fmt.Sprint(o.ID))
	}
	_, werr := fmt.Fprintf(w, "参照されていないアップロード済みファイル: %s\n", strings.Join(ids, ", "))
	return errors.Join(err, werr)
}

// trackCmd は追跡番号で申請を検索するコマンドを生成する。
func trackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "track <type> <tracking-id>",
		Short: "追跡番号で申請の状況を表示する",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := a.gw.Track(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("%w: %s", errApplicationNotFound, args[1])
			}
			return a.print(cmd.OutOrStdout(), record)
		},
	}
}

// errApplicationNotFound は追跡番号に該当する申請がないことを表す。
var errApplicationNotFound = errors.New("申請が見つかりません")
