package main

import (
	"strings"
	"testing"
)

func scanAll(t *testing.T, source string) []TokenType {
	t.Helper()

	l := NewLexer("test.c", []byte(source))

	var tokens []TokenType
	for {
		if err := l.NextToken(); err != nil {
			t.Fatalf("scanning %q failed: %v", source, err)
		}
		if l.token == TOKEN_EOF {
			return tokens
		}
		tokens = append(tokens, l.token)
	}
}

func TestScanTokens(t *testing.T) {
	tokens := scanAll(t, "uint32_t* foo(uint32_t x) { return x + 1; }")

	want := []TokenType{
		TOKEN_UINT32, TOKEN_STAR, TOKEN_IDENT, TOKEN_LPAREN, TOKEN_UINT32, TOKEN_IDENT,
		TOKEN_RPAREN, TOKEN_LBRACE, TOKEN_RETURN, TOKEN_IDENT, TOKEN_PLUS, TOKEN_INT,
		TOKEN_SEMICOLON, TOKEN_RBRACE,
	}

	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, tokens[i], want[i])
		}
	}
}

func TestScanOperators(t *testing.T) {
	tokens := scanAll(t, "== != < <= > >= = + - * / %")

	want := []TokenType{
		TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE, TOKEN_ASSIGN,
		TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH, TOKEN_MOD,
	}

	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, tokens[i], want[i])
		}
	}
}

func TestScanComments(t *testing.T) {
	l := NewLexer("test.c", []byte("// line comment\n/* multi\nline */ foo"))

	if err := l.NextToken(); err != nil {
		t.Fatal(err)
	}
	if l.token != TOKEN_IDENT || l.ident != "foo" {
		t.Errorf("got token %v ident %q", l.token, l.ident)
	}
	if l.line != 3 {
		t.Errorf("line = %d, want 3", l.line)
	}
}

func TestScanSlashIsNotComment(t *testing.T) {
	tokens := scanAll(t, "a / b")

	if len(tokens) != 3 || tokens[1] != TOKEN_SLASH {
		t.Errorf("got %v", tokens)
	}
}

func TestScanCharacterLiteral(t *testing.T) {
	l := NewLexer("test.c", []byte("'U' '\\n'"))

	if err := l.NextToken(); err != nil {
		t.Fatal(err)
	}
	if l.token != TOKEN_CHAR || l.literal != 85 {
		t.Errorf("got token %v literal %d", l.token, l.literal)
	}

	if err := l.NextToken(); err != nil {
		t.Fatal(err)
	}
	if l.literal != 10 {
		t.Errorf("escaped newline literal = %d", l.literal)
	}
}

func TestScanStringLiteral(t *testing.T) {
	l := NewLexer("test.c", []byte(`"Hello\n\t\"quoted\"\\"`))

	if err := l.NextToken(); err != nil {
		t.Fatal(err)
	}
	if l.token != TOKEN_STRING {
		t.Fatalf("got token %v", l.token)
	}
	if l.str != "Hello\n\t\"quoted\"\\" {
		t.Errorf("string = %q", l.str)
	}
}

func TestScanIntegerBounds(t *testing.T) {
	l := NewLexer("test.c", []byte("4294967295"))
	if err := l.NextToken(); err != nil {
		t.Fatal(err)
	}
	if l.literal != 4294967295 {
		t.Errorf("literal = %d", l.literal)
	}

	l = NewLexer("test.c", []byte("4294967296"))
	if err := l.NextToken(); err == nil {
		t.Error("integer overflow not detected")
	}
}

func TestScanSignedIntegerBound(t *testing.T) {
	// after a consumed '-', the maximum is 2^31 to represent INT32_MIN
	l := NewLexer("test.c", []byte("2147483648"))
	l.integerIsSigned = true
	if err := l.NextToken(); err != nil {
		t.Fatalf("INT32_MIN magnitude rejected: %v", err)
	}

	l = NewLexer("test.c", []byte("2147483649"))
	l.integerIsSigned = true
	if err := l.NextToken(); err == nil {
		t.Error("signed integer overflow not detected")
	}
}

func TestScanErrors(t *testing.T) {
	for _, source := range []string{
		"/* runaway",
		"\"unterminated",
		"\"line\nbreak\"",
		"'",
		"\"" + strings.Repeat("x", 129) + "\"",
		strings.Repeat("a", 65),
		"@",
		"!x",
		"\"bad \\q escape\"",
	} {
		l := NewLexer("test.c", []byte(source))

		var err error
		for i := 0; i < 100 && err == nil; i++ {
			err = l.NextToken()
			if err == nil && l.token == TOKEN_EOF {
				break
			}
		}

		if err == nil {
			t.Errorf("no scan error for %q", source)
		}
	}
}

func TestLineTracking(t *testing.T) {
	l := NewLexer("test.c", []byte("a\nb\r\nc"))

	lines := []uint32{1, 2, 3}
	for _, want := range lines {
		if err := l.NextToken(); err != nil {
			t.Fatal(err)
		}
		if l.line != want {
			t.Errorf("line = %d, want %d", l.line, want)
		}
	}
}
