// Package gateway はリソースゲートウェイの窓口を提供する。
//
// Gateway は1つのセッションストアと1つのHTTPクライアントを所有し、
// 認証・申請送信・追跡・カタログ取得の各操作をまとめて公開する。
// 複数のGatewayは互いに独立しており、同じプロセス内で共存できる。
package gateway
