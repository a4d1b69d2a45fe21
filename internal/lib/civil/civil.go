// Package civil переводит гражданское (настенное) время именованной зоны в абсолютные
// моменты и обратно. Смещение зоны берётся из её опубликованных правил, поэтому
// сезонный перевод часов учитывается автоматически.
package civil

import (
	"fmt"
	"time"

	// Встраиваем базу часовых поясов, чтобы опорная зона находилась без системного zoneinfo.
	_ "time/tzdata"
)

// DateTime дата и время «как на стене», без привязки к зоне.
type DateTime struct {
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// Zone описывает правила смещения одной именованной зоны.
type Zone interface {
	// Name возвращает имя зоны.
	Name() string
	// ToInstant возвращает момент, который представляет dt в этой зоне.
	ToInstant(dt DateTime) time.Time
	// OffsetMinutesAt возвращает смещение зоны от UTC в минутах в момент t.
	OffsetMinutesAt(t time.Time) int
}

// LocationZone реализует Zone поверх *time.Location.
type LocationZone struct {
	loc *time.Location
}

// LoadZone загружает зону по имени IANA, например "Europe/Kyiv".
func LoadZone(name string) (*LocationZone, error) {
	const op = "civil.LoadZone"
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &LocationZone{loc: loc}, nil
}

// MustLoadZone как LoadZone, но паникует при ошибке.
func MustLoadZone(name string) *LocationZone {
	z, err := LoadZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z *LocationZone) Name() string {
	return z.loc.String()
}

// Location возвращает исходную *time.Location.
func (z *LocationZone) Location() *time.Location {
	return z.loc
}

// ToInstant переводит гражданское время в момент. Время из разрыва при переходе
// на летнее время читается со смещением до перехода, как в time.Date.
func (z *LocationZone) ToInstant(dt DateTime) time.Time {
	return dt.in(z.loc).UTC()
}

func (z *LocationZone) OffsetMinutesAt(t time.Time) int {
	_, offset := t.In(z.loc).Zone()
	return offset / 60
}

// FixedOffsetZone зона с постоянным смещением, без перехода на летнее время.
type FixedOffsetZone struct {
	name          string
	offsetMinutes int
}

// FixedZone создаёт зону с постоянным смещением offsetMinutes от UTC.
func FixedZone(name string, offsetMinutes int) *FixedOffsetZone {
	return &FixedOffsetZone{name: name, offsetMinutes: offsetMinutes}
}

func (z *FixedOffsetZone) Name() string {
	return z.name
}

func (z *FixedOffsetZone) ToInstant(dt DateTime) time.Time {
	return dt.in(time.UTC).Add(-time.Duration(z.offsetMinutes) * time.Minute)
}

func (z *FixedOffsetZone) OffsetMinutesAt(time.Time) int {
	return z.offsetMinutes
}

// Of возвращает гражданское время момента t в зоне z.
func Of(z Zone, t time.Time) DateTime {
	wall := t.UTC().Add(time.Duration(z.OffsetMinutesAt(t)) * time.Minute)
	return DateTime{
		Year:        wall.Year(),
		Month:       int(wall.Month()),
		Day:         wall.Day(),
		Hour:        wall.Hour(),
		Minute:      wall.Minute(),
		Second:      wall.Second(),
		Millisecond: wall.Nanosecond() / int(time.Millisecond),
	}
}

// MonthBounds возвращает полуинтервал [start, end) текущего гражданского месяца зоны z:
// от первого числа месяца now в 00:00:00 до первого числа следующего месяца в 00:00:00.
func MonthBounds(z Zone, now time.Time) (start, end time.Time) {
	today := Of(z, now)

	nextYear, nextMonth := today.Year, today.Month+1
	if nextMonth > 12 {
		nextMonth = 1
		nextYear++
	}

	start = z.ToInstant(DateTime{Year: today.Year, Month: today.Month, Day: 1})
	end = z.ToInstant(DateTime{Year: nextYear, Month: nextMonth, Day: 1})
	return start, end
}

// in переполнение полей нормализуется так же, как в time.Date.
func (dt DateTime) in(loc *time.Location) time.Time {
	return time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hour, dt.Minute, dt.Second, dt.Millisecond*int(time.Millisecond), loc)
}
