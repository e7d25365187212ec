package preprocessing

import (
	"regexp"
	"strings"
)

// DefaultTokenPattern はscikit-learnの既定トークンパターン (?u)\b\w\w+\b と同じ集合を返す。
// 2文字以上の単語文字（Unicodeの文字・数字・結合記号・アンダースコア）の最長連続。
const DefaultTokenPattern = `[\p{L}\p{M}\p{N}_]{2,}`

// Tokenizer は文書をトークン列に分割する
type Tokenizer struct {
	pattern   *regexp.Regexp
	lowercase bool
}

// NewTokenizer は正規表現パターンからTokenizerを作成する。
// 空文字列の場合は DefaultTokenPattern を使う。
func NewTokenizer(pattern string, lowercase bool) (*Tokenizer, error) {
	if pattern == "" {
		pattern = DefaultTokenPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{pattern: re, lowercase: lowercase}, nil
}

// Tokenize は文書を出現順のトークン列にする
func (t *Tokenizer) Tokenize(doc string) []string {
	if t.lowercase {
		doc = strings.ToLower(doc)
	}
	return t.pattern.FindAllString(doc, -1)
}

// TokenSpan は元の文書中でのトークンの位置
type TokenSpan struct {
	Token      string // 正規化後（小文字化後）のトークン
	Start, End int    // 元の文書のバイトオフセット
}

// Spans はトークンと元文書上のバイト位置を返す。
// マッチは元の文書に対して行い、トークンだけを小文字化する。
func (t *Tokenizer) Spans(doc string) []TokenSpan {
	locs := t.pattern.FindAllStringIndex(doc, -1)
	out := make([]TokenSpan, 0, len(locs))
	for _, loc := range locs {
		tok := doc[loc[0]:loc[1]]
		if t.lowercase {
			tok = strings.ToLower(tok)
		}
		out = append(out, TokenSpan{Token: tok, Start: loc[0], End: loc[1]})
	}
	return out
}

// NGrams は単語n-gramを生成する（minN..maxN、空白区切り）
func NGrams(tokens []string, minN, maxN int) []string {
	if minN == 1 && maxN == 1 {
		return tokens
	}
	out := make([]string, 0, len(tokens)*(maxN-minN+1))
	for n := minN; n <= maxN; n++ {
		if n == 1 {
			out = append(out, tokens...)
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
