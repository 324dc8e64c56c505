// Package submission は申請の送信（添付ファイルのアップロードと申請レコードの作成）を提供する。
//
// 事前アップロード方式では、各添付ファイルを1件ずつ順番にアップロードし、すべて成功した後に
// 取得したIDを参照する申請レコードを1回のリクエストで作成する（Pipeline）。
// 途中で失敗した場合は以降のアップロードと作成を行わず、アップロード済みのファイルも削除しない。
// 一括方式では、フィールドをJSONにした data とファイル群 files を1回のマルチパートリクエストで送信する。
package submission
