package model

// Post は投稿を表す。
// 作成・削除ハンドラー内でのみ構築され、永続化はされない。
type Post struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
}
