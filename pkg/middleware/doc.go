// Package middleware は開発用バックエンドのGinミドルウェアを提供する。
//
// JWT認証トークンの発行と検証、パニックリカバリ、CORS設定を含む。
// エラーレスポンスはすべて {"data": null, "error": {"status", "name", "message"}} 形式で返す。
package middleware
