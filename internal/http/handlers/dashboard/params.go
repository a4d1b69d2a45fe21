package dashboard

import (
	"math"
	"net/url"
	"strings"

	"github.com/magabrotheeeer/subscription-snapshot/internal/snapshot"
)

// ParseParams читает параметры снапшота из query. Нечисловые и нулевые значения
// дают 0, то есть значение по умолчанию; ограничения применяет snapshot.Builder.
func ParseParams(q url.Values) snapshot.Params {
	return snapshot.Params{
		PaymentsLimit:  leadingInt(q.Get("payments_limit")),
		ExpiringDays:   leadingInt(q.Get("expiring_days")),
		IncludeNonUser: truthy(q.Get("include_non_user")),
	}
}

// leadingInt берёт целый префикс строки: "25abc" -> 25, "  -3" -> -3, "abc" -> 0.
// Переполнение насыщается до границ int32.
func leadingInt(raw string) int {
	s := strings.TrimLeft(raw, " \t\n\r\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n := int64(0)
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n < math.MaxInt32 {
			n = n*10 + int64(s[i]-'0')
		}
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	if neg {
		n = -n
	}
	return int(n)
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
