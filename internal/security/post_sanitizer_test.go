package security

import (
	"strings"
	"sync"
	"testing"
)

// TestSanitizeTitle はタイトルからHTMLが除去されることを検証する。
func TestSanitizeTitle(t *testing.T) {
	sanitizer := NewPostSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "t", "t"},
		{"日本語はそのまま", "講座のお知らせ", "講座のお知らせ"},
		{"前後の空白を除去", "  タイトル  ", "タイトル"},
		{"タグを除去", "<b>太字</b>タイトル", "太字タイトル"},
		{"scriptを中身ごと除去", "<script>alert(1)</script>x", "x"},
		{"空白のみは空文字列", "   ", ""},
		{"空文字列", "", ""},
		{"アンパサンドはそのまま", "Tom & Jerry", "Tom & Jerry"},
		{"不等号はそのまま", "a < b", "a < b"},
		{"引用符はそのまま", `say "hi"`, `say "hi"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeTitle(tt.input); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeContent は本文から危険なHTMLが除去されることを検証する。
func TestSanitizeContent(t *testing.T) {
	sanitizer := NewPostSanitizer()

	tests := []struct {
		name       string
		input      string
		want       string
		notContain []string
	}{
		{name: "プレーンテキストはそのまま", input: "c", want: "c"},
		{name: "段落タグを除去", input: "<p>本文</p>", want: "本文"},
		{name: "記号はエスケープしない", input: "x & y 'z'", want: "x & y 'z'"},
		{name: "タグ除去後の記号も戻す", input: "<b>Q&A</b>", want: "Q&A"},
		{
			name:       "イベント属性を除去",
			input:      `<img src="x" onerror="alert(1)">本文`,
			want:       "本文",
			notContain: []string{"onerror", "<img"},
		},
		{
			name:       "iframeを除去",
			input:      `<iframe src="https://evil.example.com"></iframe>本文`,
			want:       "本文",
			notContain: []string{"iframe"},
		},
		{
			name:       "javascriptリンクを除去",
			input:      `<a href="javascript:alert(1)">link</a>`,
			want:       "link",
			notContain: []string{"javascript"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeContent(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeContent(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for _, s := range tt.notContain {
				if strings.Contains(got, s) {
					t.Errorf("output should not contain %q, got %q", s, got)
				}
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewPostSanitizer()
	input := "<div>見出し<script>x</script></div>"

	first := sanitizer.SanitizeContent(input)
	if second := sanitizer.SanitizeContent(first); second != first {
		t.Errorf("second pass changed output: %q -> %q", first, second)
	}
}

// TestSanitize_Concurrent は並行利用時に安全であることを検証する。
func TestSanitize_Concurrent(t *testing.T) {
	sanitizer := NewPostSanitizer()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := sanitizer.SanitizeTitle("<em>t</em>"); got != "t" {
				t.Errorf("SanitizeTitle() = %q, want %q", got, "t")
			}
		}()
	}
	wg.Wait()
}

// TestPostSanitizerInterface はインターフェースを正しく実装していることをテストする。
func TestPostSanitizerInterface(t *testing.T) {
	var _ PostSanitizer = NewPostSanitizer()
}
