// Package aggregate derives postal codes and cities from the first inventor's
// address and counts records per postal code and per city.
package aggregate

import (
	"sort"
	"strings"
	"unicode"

	"github.com/IBM/fp-go/v2/option"
	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/table"
)

const CountColumn = "Number of Patents"

var orEmpty = option.GetOrElse(func() string { return "" })

// Aggregator filters flat rows to one country and derives their locations.
type Aggregator struct {
	Layout  models.Layout
	Country string
}

// Locations returns one location per row whose first inventor's country is
// a.Country, in row order.
func (a *Aggregator) Locations(t *table.Table) ([]models.Location, error) {
	addressCol := a.Layout.Column(models.Inventors, 0, models.Address)
	countryCol := a.Layout.Column(models.Inventors, 0, models.Country)
	if !t.Has(addressCol) || !t.Has(countryCol) {
		return nil, &models.EmptyAggregationError{What: "table has no " + a.Layout.RoleName(models.Inventors) + " columns"}
	}

	var locs []models.Location
	for row := 0; row < t.NumRows(); row++ {
		if country := t.Value(row, countryCol); option.IsNone(country) || orEmpty(country) != a.Country {
			continue
		}
		address := t.Value(row, addressCol)
		locs = append(locs, models.Location{
			DocumentID: orEmpty(t.Value(row, a.Layout.DocumentID)),
			PostalCode: ExtractPostalCode(address),
			City:       ExtractCity(address),
		})
	}
	return locs, nil
}

// ExtractPostalCode returns the first space-separated token of address when
// it reads as an integer literal. This is a heuristic for "<PLZ> <city>"
// addresses; it does not check the length or format of the code.
func ExtractPostalCode(address option.Option[string]) option.Option[string] {
	return option.Chain(func(s string) option.Option[string] {
		first := strings.Split(s, " ")[0]
		if !isInteger(first) {
			return option.None[string]()
		}
		return option.Some(first)
	})(address)
}

// isInteger accepts an optionally signed run of decimal digits of any length,
// with single underscores allowed between digits and surrounding whitespace
// ignored.
func isInteger(s string) bool {
	s = strings.TrimSpace(s)
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	prevDigit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			prevDigit = true
		case r == '_' && prevDigit:
			prevDigit = false
		default:
			return false
		}
	}
	return prevDigit
}

// ExtractCity returns everything after the first space-separated token, None
// when there is nothing after it.
func ExtractCity(address option.Option[string]) option.Option[string] {
	return option.Chain(func(s string) option.Option[string] {
		tokens := strings.Split(s, " ")
		if len(tokens) < 2 {
			return option.None[string]()
		}
		return option.Some(strings.Join(tokens[1:], " "))
	})(address)
}

// ByPostalCode counts locations per postal code. Codes without any city get
// placeholder as their city list.
func ByPostalCode(locs []models.Location, placeholder string) []models.AggregateRow {
	return group(locs,
		func(l models.Location) option.Option[string] { return l.PostalCode },
		func(l models.Location) option.Option[string] { return l.City },
		placeholder,
	)
}

// ByCity counts locations per city with the postal codes seen for it.
func ByCity(locs []models.Location) []models.AggregateRow {
	return group(locs,
		func(l models.Location) option.Option[string] { return l.City },
		func(l models.Location) option.Option[string] { return l.PostalCode },
		"",
	)
}

type bucket struct {
	count      int
	associated map[string]struct{}
}

// group keeps None as a key of its own, ordered after every other key.
func group(
	locs []models.Location,
	key, associated func(models.Location) option.Option[string],
	placeholder string,
) []models.AggregateRow {
	buckets := map[string]*bucket{}
	var null *bucket
	for _, l := range locs {
		var b *bucket
		if k := key(l); option.IsSome(k) {
			name := orEmpty(k)
			if b = buckets[name]; b == nil {
				b = &bucket{associated: map[string]struct{}{}}
				buckets[name] = b
			}
		} else {
			if null == nil {
				null = &bucket{associated: map[string]struct{}{}}
			}
			b = null
		}
		b.count++
		if v := associated(l); option.IsSome(v) {
			b.associated[orEmpty(v)] = struct{}{}
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]models.AggregateRow, 0, len(keys)+1)
	for _, k := range keys {
		rows = append(rows, buckets[k].row(option.Some(k), placeholder))
	}
	if null != nil {
		rows = append(rows, null.row(option.None[string](), placeholder))
	}
	return rows
}

func (b *bucket) row(key option.Option[string], placeholder string) models.AggregateRow {
	values := make([]string, 0, len(b.associated))
	for v := range b.associated {
		values = append(values, v)
	}
	sort.Strings(values)
	joined := strings.Join(values, ", ")
	if len(values) == 0 {
		joined = placeholder
	}
	return models.AggregateRow{Key: key, Count: b.count, Associated: joined}
}

// SummaryTable lays rows out as key, count and associated columns.
func SummaryTable(rows []models.AggregateRow, keyColumn, associatedColumn string, mem memory.Allocator) *table.Table {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: keyColumn, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: CountColumn, Type: arrow.PrimitiveTypes.Int64},
		{Name: associatedColumn, Type: arrow.BinaryTypes.String},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	keys := b.Field(0).(*array.StringBuilder)
	counts := b.Field(1).(*array.Int64Builder)
	associated := b.Field(2).(*array.StringBuilder)
	for _, r := range rows {
		table.AppendString(keys, r.Key)
		counts.Append(int64(r.Count))
		associated.Append(r.Associated)
	}
	return table.New(b.NewRecord())
}
