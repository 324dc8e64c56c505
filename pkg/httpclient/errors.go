package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrPathEscapesRoot はリクエストパスがAPIルートの外を指していることを表す。
var ErrPathEscapesRoot = errors.New("パスがAPIルートの外を指しています")

// Kind はゲートウェイが返すエラーの種別を表す。
type Kind int

const (
	// KindNetwork はレスポンスを受け取れなかったトランスポート層の失敗を表す。
	KindNetwork Kind = iota + 1
	// KindAuth は401/403による認証・認可の失敗を表す。
	KindAuth
	// KindValidation は認証以外の4xxによる失敗を表す。
	KindValidation
	// KindServer は5xx、または解釈できないレスポンスによる失敗を表す。
	KindServer
	// KindUpload はアップロードパイプラインの第1段階（ファイルアップロード）での失敗を表す。
	KindUpload
)

// String はメトリクスのラベルやログに使う種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// Error はサーバーまたはトランスポートの失敗を正規化したエラー。
type Error struct {
	// Kind はエラーの種別。
	Kind Kind
	// Status はHTTPステータスコード。レスポンスを受け取れなかった場合は0。
	Status int
	// Message は人が読めるエラーメッセージ。
	Message string
	// Err は元になったエラー。
	Err error
}

// Error はメッセージをそのまま返す。
func (e *Error) Error() string {
	return e.Message
}

// Unwrap は元になったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はエラーチェーンに含まれる *Error の種別を返す。含まれない場合は0を返す。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// WithKind はメッセージとステータスを保ったまま種別だけを差し替えたエラーを返す。
// アップロード段階の失敗を KindUpload として区別するために使う。
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: kind, Status: e.Status, Message: e.Message, Err: err}
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// kindForStatus はHTTPステータスコードからエラー種別を決定する。
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// newStatusError は成功以外のレスポンスから *Error を生成する。
func newStatusError(status int, statusLine string, body []byte) *Error {
	return &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: extractMessage(body, statusLine),
	}
}

// extractMessage はエラーボディからメッセージを取り出す。
// トップレベルの message、入れ子の error.message の順に探し、どちらもなければボディ全体をシリアライズした文字列を返す。
// message が文字列以外の値（配列やオブジェクトなど）の場合は、その値をシリアライズして使う。
// JSONでないボディはそのままの文字列、空のボディはステータス行を返す。
func extractMessage(body []byte, statusLine string) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return statusLine
	}

	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return string(trimmed)
	}

	if obj, ok := parsed.(map[string]any); ok {
		if msg, ok := messageText(obj["message"]); ok {
			return msg
		}
		if nested, ok := obj["error"].(map[string]any); ok {
			if msg, ok := messageText(nested["message"]); ok {
				return msg
			}
		}
	}

	serialized, err := json.Marshal(parsed)
	if err != nil {
		return string(trimmed)
	}
	return string(serialized)
}

// messageText は message フィールドの値を文字列にする。
// 空文字列、0、false、null は値なしとみなす。
func messageText(v any) (string, bool) {
	switch m := v.(type) {
	case nil:
		return "", false
	case string:
		return m, m != ""
	case bool:
		return "true", m
	case float64:
		if m == 0 {
			return "", false
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
