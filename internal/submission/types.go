package submission

import (
	"encoding/json"
	"io"
)

// Status は申請の処理状況。サーバー側でのみ更新される。
type Status string

const (
	// StatusPending は受付済みで未処理であることを表す。
	StatusPending Status = "pending"
	// StatusProcessing は処理中であることを表す。
	StatusProcessing Status = "processing"
	// StatusCompleted は処理が完了したことを表す。
	StatusCompleted Status = "completed"
	// StatusFailed は処理が失敗したことを表す。
	StatusFailed Status = "failed"
)

// Valid は定義済みの状態かどうかを返す。
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Attachment は申請に添付するファイル。
type Attachment struct {
	// Field は申請レコード上でアップロードIDを格納するフィールド名。
	// 同じフィールド名の添付が複数ある場合はIDの配列になる。
	Field string
	// FileName は送信するファイル名。
	FileName string
	// ContentType はファイルのMIMEタイプ。
	ContentType string
	// Content はファイルの内容。
	Content io.Reader
}

// Uploaded はアップロード済みファイルの参照。申請レコードの作成で1度だけ使われる。
type Uploaded struct {
	// ID はサーバーが割り当てたファイルID。
	ID int64 `json:"id"`
	// URL はファイルの絶対URL。
	URL string `json:"url"`
}

// Record はサーバー上に作成された申請レコード。作成後はクライアントから変更しない。
type Record struct {
	// ID はレコードID。
	ID int64
	// TrackingID は外部に公開する追跡番号。
	TrackingID string
	// Type は申請の種類（例: "visa"）。
	Type string
	// Status は処理状況。
	Status Status
	// AttachmentIDs は参照しているアップロード済みファイルのID。
	AttachmentIDs []int64
	// Fields はその他のフィールド。
	Fields map[string]any
}

// recordKeys はRecordの固定フィールドに対応するJSONキー。
var recordKeys = []string{"id", "tracking_id", "type", "status", "attachments"}

// UnmarshalJSON は固定フィールド以外のキーをFieldsに格納する。
func (r *Record) UnmarshalJSON(b []byte) error {
	var known struct {
		ID          int64   `json:"id"`
		TrackingID  string  `json:"tracking_id"`
		Type        string  `json:"type"`
		Status      Status  `json:"status"`
		Attachments []int64 `json:"attachments"`
	}
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for _, k := range recordKeys {
		delete(fields, k)
	}

	*r = Record{
		ID:            known.ID,
		TrackingID:    known.TrackingID,
		Type:          known.Type,
		Status:        known.Status,
		AttachmentIDs: known.Attachments,
		Fields:        fields,
	}
	return nil
}

// MarshalJSON はFieldsを展開した平坦なJSONを返す。
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+len(recordKeys))
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["tracking_id"] = r.TrackingID
	out["type"] = r.Type
	out["status"] = r.Status
	out["attachments"] = r.AttachmentIDs
	return json.Marshal(out)
}

// recordEnvelope は作成APIのレスポンス形式（{"data": {...}}）。
type recordEnvelope struct {
	Data *Record `json:"data"`
}

// Endpoint は申請の種類に対応するエンドポイントを返す（例: "visa" → "visa-applications"）。
func Endpoint(appType string) string {
	return appType + "-applications"
}
