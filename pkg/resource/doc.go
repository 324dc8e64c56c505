// Package resource はゲートウェイの型付き読み取り操作（単一リソース、一覧、ページング付き一覧）を提供する。
//
// 一覧のフィルタや関連の展開などのクエリ断片は呼び出し側が組み立てた文字列をそのまま連結し、
// このパッケージでは解釈しない。新しいフィルタ構文が増えてもそのまま渡せる。
package resource
