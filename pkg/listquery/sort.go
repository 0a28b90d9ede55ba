package listquery

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultLocale is used when no locale is configured.
const DefaultLocale = "az"

type valueKind int

const (
	kindNull valueKind = iota
	kindText
	kindNumber
	kindTime
)

// Value is a sortable cell.
type Value struct {
	kind valueKind
	text string
	num  float64
	at   time.Time
}

// Text is a collated string value.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// Number is a numeric value.
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }

func Int(n int) Value { return Value{kind: kindNumber, num: float64(n)} }

func Null() Value { return Value{} }

func (v Value) IsNull() bool { return v.kind == kindNull }

// OptionalText maps nil to Null.
func OptionalText(s *string) Value {
	if s == nil {
		return Null()
	}
	return Text(*s)
}

// OptionalNumber maps nil to Null.
func OptionalNumber(f *float64) Value {
	if f == nil {
		return Null()
	}
	return Number(*f)
}

// Time maps the zero time to Null.
func Time(t time.Time) Value {
	if t.IsZero() {
		return Null()
	}
	return Value{kind: kindTime, at: t}
}

// FieldSet maps sortable field names to accessors.
type FieldSet[T any] map[string]func(T) Value

// Names returns the sortable field names.
func (f FieldSet[T]) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewCollator returns a collator for locale, falling back to DefaultLocale.
// Collators are not safe for concurrent use; create one per request.
func NewCollator(locale string) *collate.Collator {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return collate.New(tag)
}

// SortRows returns a sorted copy of rows. Nulls go last in both directions and
// equal keys keep their relative order. An unknown or empty field returns rows unchanged.
func SortRows[T any](rows []T, spec SortSpec, fields FieldSet[T], collator *collate.Collator) []T {
	accessor, ok := fields[spec.Field]
	if !spec.Active() || !ok {
		return rows
	}

	type keyed struct {
		row T
		key Value
	}
	items := make([]keyed, len(rows))
	for i, row := range rows {
		items[i] = keyed{row: row, key: accessor(row)}
	}

	desc := spec.Direction == Desc
	slices.SortStableFunc(items, func(a, b keyed) int {
		return compareValues(a.key, b.key, desc, collator)
	})

	out := make([]T, len(items))
	for i, item := range items {
		out[i] = item.row
	}
	return out
}

func compareValues(a, b Value, desc bool, collator *collate.Collator) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}

	var c int
	if a.kind != b.kind {
		c = cmp.Compare(a.kind, b.kind)
	} else {
		switch a.kind {
		case kindText:
			if collator != nil {
				c = collator.CompareString(a.text, b.text)
			} else {
				c = strings.Compare(a.text, b.text)
			}
		case kindNumber:
			c = cmp.Compare(a.num, b.num)
		case kindTime:
			c = a.at.Compare(b.at)
		}
	}
	if desc {
		return -c
	}
	return c
}
