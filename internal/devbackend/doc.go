// Package devbackend はローカル開発用のバックエンドサービスを提供する。
//
// コンテンツAPI（/api/）とIDサービス（/auth/v1/）の両方を1つのGinサーバーで提供し、
// データはSQLiteに、アップロードファイルはローカルディレクトリに保存する。
// travelgate クライアントの動作確認とエンドツーエンドテストに使用する。
package devbackend
