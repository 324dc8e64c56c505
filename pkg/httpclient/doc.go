// Package httpclient はバックエンドのコンテンツ/認証サービスとのHTTP通信を行うクライアントを提供する。
//
// 1回のHTTP交換を組み立てて送信し、Sessionに保持されたBearerクレデンシャルを付与する。
// サーバーが返す形式の異なるエラーボディは、種別（Kind）とメッセージを持つ *Error に正規化する。
// リクエスト先は常に "<ベースURL>/api/" 配下に限定し、相対パスがこのルートの外を指すことを許さない。
package httpclient
