// Package session はゲートウェイが保持する認証クレデンシャル（Bearerトークン）を管理する。
//
// Storeはプロセス内でクレデンシャルを1つだけ保持し、すべてのHTTPリクエストから参照される。
// Persisterを指定すると、ファイルやRedisに書き出してプロセスをまたいで再利用できる。
// クレデンシャルの検証・更新・暗号化は行わない。
package session
