package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotPersisted は永続化先にクレデンシャルが保存されていないことを表す。
// Persister.Load が返し、Open はこれを「未ログイン状態」として扱う。
var ErrNotPersisted = errors.New("クレデンシャルが保存されていません")

// Persister はクレデンシャルの永続化先を表す。
type Persister interface {
	// Load は保存済みのクレデンシャルを読み込む。未保存の場合は ErrNotPersisted を返す。
	Load(ctx context.Context) (string, error)
	// Save はクレデンシャルを上書き保存する。
	Save(ctx context.Context, token string) error
	// Delete は保存済みのクレデンシャルを削除する。未保存でもエラーにしない。
	Delete(ctx context.Context) error
}

// Store は現在のBearerクレデンシャルを保持するセル。
// 読み書きはミューテックスで保護するが、ログイン・ログアウトの一連の操作の直列化は呼び出し側の責務とする。
type Store struct {
	// mu はtokenへのアクセスを保護する。
	mu sync.RWMutex
	// token は現在のクレデンシャル。空文字列は未設定を表す。
	token string
	// persister はクレデンシャルの永続化先。nilの場合はメモリのみで保持する。
	persister Persister
}

// NewMemory はメモリ上にのみクレデンシャルを保持するStoreを生成する。
func NewMemory() *Store {
	return &Store{}
}

// Open は永続化先から既存のクレデンシャルを読み込んだStoreを生成する。
// 保存済みのクレデンシャルがなければ未ログイン状態のStoreを返す。
func Open(ctx context.Context, p Persister) (*Store, error) {
	s := &Store{persister: p}
	if p == nil {
		return s, nil
	}

	token, err := p.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotPersisted) {
			return s, nil
		}
		return nil, fmt.Errorf("クレデンシャルの読み込みに失敗: %w", err)
	}
	s.token = token
	return s, nil
}

// Set はクレデンシャルを上書きする。値の検証は行わない。
// 永続化に失敗した場合もメモリ上の値は更新済みとなる。
func (s *Store) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, token); err != nil {
		return fmt.Errorf("クレデンシャルの保存に失敗: %w", err)
	}
	return nil
}

// Clear はクレデンシャルを削除する。以降のリクエストは未認証で送信される。
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Delete(ctx); err != nil {
		return fmt.Errorf("クレデンシャルの削除に失敗: %w", err)
	}
	return nil
}

// Current は現在のクレデンシャルを返す。未設定の場合は第2戻り値がfalseになる。
func (s *Store) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}
