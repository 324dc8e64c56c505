package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/nao1215/travelgate/pkg/httpclient"
)

const (
	// uploadPath はファイルアップロードのエンドポイント。
	uploadPath = "upload"
	// uploadField はアップロード・一括送信でファイルを格納するフォームフィールド名。
	uploadField = "files"
	// dataField は一括送信でフィールドのJSONを格納するフォームフィールド名。
	dataField = "data"
	// attachmentsField は申請レコードが参照するアップロードIDの一覧を格納するフィールド名。
	attachmentsField = "attachments"

	// TypeVisa はビザ申請の種類。
	TypeVisa = "visa"
	// TypeDrivingLicense は国際運転免許証申請の種類。
	TypeDrivingLicense = "international-driving-license"
)

var (
	// ErrEmptyUpload はアップロードのレスポンスにファイルが含まれていないことを表す。
	ErrEmptyUpload = errors.New("アップロード結果が空です")
	// ErrMissingRecord は作成APIのレスポンスにレコードが含まれていないことを表す。
	ErrMissingRecord = errors.New("作成結果にレコードが含まれていません")
)

// Executor は申請の送信に必要なHTTP操作。httpclient.Client がこれを満たす。
type Executor interface {
	PostJSON(ctx context.Context, path string, body any, result any) error
	PostForm(ctx context.Context, path string, form *httpclient.Form, result any) error
	ResolveURL(ref string) string
}

// Service は申請の送信を行う。
type Service struct {
	// exec はバックエンドへのHTTPクライアント。
	exec Executor
}

// NewService は新しいServiceを生成する。
func NewService(exec Executor) *Service {
	return &Service{exec: exec}
}

// Upload はファイルを1件アップロードし、IDとベースURLに連結したURLを返す。
// 失敗はすべて httpclient.KindUpload のエラーとして返す。
func (s *Service) Upload(ctx context.Context, a Attachment) (Uploaded, error) {
	form := httpclient.NewForm().AddFile(httpclient.File{
		FieldName:   uploadField,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Content:     a.Content,
	})

	var results []Uploaded
	if err := s.exec.PostForm(ctx, uploadPath, form, &results); err != nil {
		return Uploaded{}, httpclient.WithKind(err, httpclient.KindUpload)
	}
	if len(results) == 0 {
		return Uploaded{}, httpclient.WithKind(ErrEmptyUpload, httpclient.KindUpload)
	}

	return Uploaded{
		ID:  results[0].ID,
		URL: s.exec.ResolveURL(results[0].URL),
	}, nil
}

// NewPipeline は事前アップロード方式の送信パイプラインを生成する。実行はRunで行う。
func (s *Service) NewPipeline(req Request) *Pipeline {
	return newPipeline(s, req)
}

// Submit は事前アップロード方式で申請を送信する。
func (s *Service) Submit(ctx context.Context, req Request) (*Record, error) {
	return s.NewPipeline(req).Run(ctx)
}

// SubmitInline はフィールドとファイルを1回のマルチパートリクエストで送信する。
// フィールドはJSON文字列として data に、ファイルは files に格納する。
func (s *Service) SubmitInline(ctx context.Context, path string, fields map[string]any, files []Attachment) (*Record, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("申請データのシリアライズに失敗: %w", err)
	}

	form := httpclient.NewForm().AddField(dataField, string(data))
	for _, f := range files {
		form.AddFile(httpclient.File{
			FieldName:   uploadField,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Content:     f.Content,
		})
	}

	var resp recordEnvelope
	if err := s.exec.PostForm(ctx, path, form, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrMissingRecord
	}
	log.Printf("[Submission] 申請を作成しました: path=%s, tracking_id=%s", path, resp.Data.TrackingID)
	return resp.Data, nil
}

// SubmitVisaApplication はビザ申請を一括方式で送信する。
func (s *Service) SubmitVisaApplication(ctx context.Context, fields map[string]any, files []Attachment) (*Record, error) {
	return s.SubmitInline(ctx, Endpoint(TypeVisa), fields, files)
}

// DrivingLicenseApplication は国際運転免許証申請の入力項目。
type DrivingLicenseApplication struct {
	// FullName は申請者の氏名。
	FullName string
	// Email は申請者のメールアドレス。
	Email string
	// PaymentStatus は支払い状況。
	PaymentStatus Status
}

// DrivingLicenseFiles は国際運転免許証申請に必要な添付ファイル。
type DrivingLicenseFiles struct {
	// LicenseFront は運転免許証の表面。
	LicenseFront Attachment
	// PassportPage はパスポートの顔写真ページ。
	PassportPage Attachment
	// PersonalPhoto は本人の顔写真。
	PersonalPhoto Attachment
}

// SubmitDrivingLicenseApplication は国際運転免許証申請を事前アップロード方式で送信する。
// 免許証表面、パスポート、顔写真の順にアップロードする。
func (s *Service) SubmitDrivingLicenseApplication(ctx context.Context, app DrivingLicenseApplication, files DrivingLicenseFiles) (*Record, error) {
	files.LicenseFront.Field = "licenseFront"
	files.PassportPage.Field = "passportPage"
	files.PersonalPhoto.Field = "personalPhoto"

	return s.Submit(ctx, Request{
		Type: TypeDrivingLicense,
		Fields: map[string]any{
			"fullName":      app.FullName,
			"email":         app.Email,
			"paymentStatus": app.PaymentStatus,
		},
		Attachments: []Attachment{files.LicenseFront, files.PassportPage, files.PersonalPhoto},
	})
}
