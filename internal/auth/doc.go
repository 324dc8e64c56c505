// Package auth はユーザー登録・ログイン・ログアウトを提供する。
//
// 登録はIDサービスでのユーザー作成と、同じ認証情報でのパスワードサインインの2回の呼び出しで行う。
// サインインに失敗した場合、作成済みのユーザーは削除せずエラーだけを返す。
// ログインはバックエンドの auth/login を1回呼び出し、取得したアクセストークンをセッションに保存する。
package auth
