package formula

import (
	"fmt"
	"regexp"
	"strings"
)

const MaxLength = 500

var deniedWords = regexp.MustCompile(`(?i)\b(eval|function|import|require|process|global|globalthis|window|document|fetch|xmlhttprequest|settimeout|setinterval|constructor|prototype|__proto__|new|this)\b`)

var deniedSymbols = []string{"=>", ";", "`", "{", "}", "[", "]", "\\", "'", "\""}

// Validate — быстрый отсев до разбора. Пропущенное здесь всё равно
// упрётся в закрытый словарь токенайзера.
func Validate(src string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	if len(src) > MaxLength {
		return ErrTooLong
	}
	if m := deniedWords.FindString(src); m != "" {
		return fmt.Errorf("%w: %q", ErrForbidden, m)
	}
	for _, s := range deniedSymbols {
		if strings.Contains(src, s) {
			return fmt.Errorf("%w: %q", ErrForbidden, s)
		}
	}
	return nil
}
