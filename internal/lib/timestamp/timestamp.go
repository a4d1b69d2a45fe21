// Package timestamp приводит «грязные» сохранённые отметки времени к абсолютным моментам.
//
// Значения приходят от разных писателей в разных форматах: ISO со смещением,
// "YYYY-MM-DD[ HH:MM[:SS[.ffffff]]]", "DD.MM.YYYY[ HH:MM]" и произвольный текст.
// Значения без зоны читаются как гражданское время опорной зоны. Нормализатор
// тотален: на некорректный ввод он возвращает «неразрешимый» результат, а не ошибку.
package timestamp

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/civil"
)

// Shape правило, по которому было разобрано значение.
type Shape int

const (
	// ShapeNone значение не разрешилось.
	ShapeNone Shape = iota
	// ShapeIsoOffset явный маркер UTC или числовое смещение.
	ShapeIsoOffset
	// ShapeYmdHyphen "YYYY-MM-DD" с необязательным временем.
	ShapeYmdHyphen
	// ShapeDmyDotted "DD.MM.YYYY" с необязательным "HH:MM".
	ShapeDmyDotted
	// ShapeGenericFallback общий разбор произвольного текста.
	ShapeGenericFallback
)

func (s Shape) String() string {
	switch s {
	case ShapeIsoOffset:
		return "iso_offset"
	case ShapeYmdHyphen:
		return "ymd_hyphen"
	case ShapeDmyDotted:
		return "dmy_dotted"
	case ShapeGenericFallback:
		return "generic_fallback"
	default:
		return "none"
	}
}

// Result итог нормализации: момент либо признак «не разрешилось».
type Result struct {
	Instant time.Time
	Shape   Shape
}

// Unresolved результат для отсутствующих и некорректных значений.
var Unresolved = Result{}

// Resolved сообщает, удалось ли получить момент.
func (r Result) Resolved() bool {
	return r.Shape != ShapeNone
}

// After сообщает, что r строго позже o. Неразрешённый результат считается
// самым ранним возможным моментом и никогда не бывает «позже».
func (r Result) After(o Result) bool {
	if !r.Resolved() {
		return false
	}
	if !o.Resolved() {
		return true
	}
	return r.Instant.After(o.Instant)
}

// endOfDay время по умолчанию для значений без часовой части: подписка
// с датой окончания без времени действует до конца этого дня.
var endOfDay = struct{ hour, minute int }{23, 59}

var (
	explicitZoneRe = regexp.MustCompile(`(?:[zZ]|[+-]\d{2}:?\d{2}|\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?[+-]\d{2})$`)
	ymdHyphenRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	dmyDottedRe    = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}`)
)

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04Z07",
}

// rule одно правило разбора. terminal означает, что при совпадении шаблона
// следующие правила уже не пробуются, даже если разбор не удался.
type rule struct {
	shape    Shape
	terminal bool
	match    func(raw, value string) bool
	parse    func(n *Normalizer, raw, value string) (time.Time, bool)
}

var rules = []rule{
	{
		shape: ShapeIsoOffset,
		match: func(raw, _ string) bool { return explicitZoneRe.MatchString(raw) },
		parse: func(_ *Normalizer, raw, _ string) (time.Time, bool) { return parseIsoOffset(raw) },
	},
	{
		shape:    ShapeYmdHyphen,
		terminal: true,
		match:    func(_, value string) bool { return ymdHyphenRe.MatchString(value) },
		parse:    func(n *Normalizer, _, value string) (time.Time, bool) { return n.parseYmd(value) },
	},
	{
		shape:    ShapeDmyDotted,
		terminal: true,
		match:    func(_, value string) bool { return dmyDottedRe.MatchString(value) },
		parse:    func(n *Normalizer, _, value string) (time.Time, bool) { return n.parseDmy(value) },
	},
	{
		shape: ShapeGenericFallback,
		match: func(string, string) bool { return true },
		parse: func(_ *Normalizer, raw, _ string) (time.Time, bool) { return parseGeneric(raw) },
	},
}

// Normalizer разбирает значения, интерпретируя время без зоны в опорной зоне.
type Normalizer struct {
	zone civil.Zone
}

// New создаёт нормализатор для опорной зоны zone.
func New(zone civil.Zone) *Normalizer {
	return &Normalizer{zone: zone}
}

// Zone возвращает опорную зону нормализатора.
func (n *Normalizer) Zone() civil.Zone {
	return n.zone
}

// Normalize разбирает строку по упорядоченному списку правил.
func (n *Normalizer) Normalize(raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Unresolved
	}
	value := strings.TrimSpace(strings.Replace(raw, "T", " ", 1))

	for _, r := range rules {
		if !r.match(raw, value) {
			continue
		}
		if t, ok := r.parse(n, raw, value); ok {
			return Result{Instant: t.UTC(), Shape: r.shape}
		}
		if r.terminal {
			return Unresolved
		}
	}
	return Unresolved
}

// NormalizeAny принимает значение из хранилища любого типа.
func (n *Normalizer) NormalizeAny(v any) Result {
	switch val := v.(type) {
	case nil:
		return Unresolved
	case string:
		return n.Normalize(val)
	case []byte:
		return n.Normalize(string(val))
	case sql.NullString:
		if !val.Valid {
			return Unresolved
		}
		return n.Normalize(val.String)
	case *string:
		if val == nil {
			return Unresolved
		}
		return n.Normalize(*val)
	case time.Time:
		if val.IsZero() {
			return Unresolved
		}
		return Result{Instant: val.UTC(), Shape: ShapeIsoOffset}
	case int64:
		return n.Normalize(strconv.FormatInt(val, 10))
	case float64:
		return n.Normalize(strconv.FormatFloat(val, 'f', -1, 64))
	default:
		return n.Normalize(fmt.Sprint(val))
	}
}

// First возвращает первое разрешившееся значение цепочки.
func (n *Normalizer) First(values ...sql.NullString) Result {
	for _, v := range values {
		if r := n.NormalizeAny(v); r.Resolved() {
			return r
		}
	}
	return Unresolved
}

func parseIsoOffset(raw string) (time.Time, bool) {
	candidate := raw
	if !strings.Contains(candidate, "T") {
		candidate = strings.Replace(candidate, " ", "T", 1)
	}
	if strings.HasSuffix(candidate, "z") {
		candidate = strings.TrimSuffix(candidate, "z") + "Z"
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (n *Normalizer) parseYmd(value string) (time.Time, bool) {
	datePart, timePart := splitDateTime(value)

	ymd := strings.Split(datePart, "-")
	dt := civil.DateTime{Year: number(ymd, 0), Month: number(ymd, 1), Day: number(ymd, 2)}
	if dt.Year == 0 || dt.Month == 0 || dt.Day == 0 {
		return time.Time{}, false
	}

	if timePart == "" {
		dt.Hour, dt.Minute = endOfDay.hour, endOfDay.minute
		return n.zone.ToInstant(dt), true
	}

	hms, fraction, _ := strings.Cut(timePart, ".")
	clock := strings.Split(hms, ":")
	dt.Hour, dt.Minute, dt.Second = number(clock, 0), number(clock, 1), number(clock, 2)
	if fraction != "" {
		dt.Millisecond = millis(fraction)
	}
	return n.zone.ToInstant(dt), true
}

func (n *Normalizer) parseDmy(value string) (time.Time, bool) {
	datePart, timePart := splitDateTime(value)

	dmy := strings.Split(datePart, ".")
	dt := civil.DateTime{Day: number(dmy, 0), Month: number(dmy, 1), Year: number(dmy, 2)}
	if dt.Year == 0 || dt.Month == 0 || dt.Day == 0 {
		return time.Time{}, false
	}

	if timePart == "" {
		dt.Hour, dt.Minute = endOfDay.hour, endOfDay.minute
	} else {
		clock := strings.Split(timePart, ":")
		dt.Hour, dt.Minute = number(clock, 0), number(clock, 1)
	}
	return n.zone.ToInstant(dt), true
}

func parseGeneric(raw string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// splitDateTime делит значение по пробелам и берёт первые два фрагмента.
func splitDateTime(value string) (datePart, timePart string) {
	parts := strings.Split(value, " ")
	datePart = parts[0]
	if len(parts) > 1 {
		timePart = parts[1]
	}
	return datePart, timePart
}

// number возвращает i-й фрагмент как целое; отсутствующий или нечисловой фрагмент даёт 0.
func number(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// millis приводит дробную часть секунды к миллисекундам: лишние цифры отбрасываются,
// недостающие дополняются нулями.
func millis(fraction string) int {
	if len(fraction) < 3 {
		fraction += strings.Repeat("0", 3-len(fraction))
	}
	v, err := strconv.Atoi(fraction[:3])
	if err != nil {
		return 0
	}
	return v
}
