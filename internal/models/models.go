package models

import (
	"fmt"

	"github.com/IBM/fp-go/v2/option"
)

// PatentRecord is the data extracted from one register XML file.
type PatentRecord struct {
	DocumentID string
	Country    string
	FilingDate string
	Applicants []AddressEntry
	Inventors  []AddressEntry
}

// AddressEntry is one party of a record. Any field may be absent.
type AddressEntry struct {
	Name    option.Option[string]
	Address option.Option[string]
	Country option.Option[string]
}

// Role selects one of the address-bearing party lists.
type Role int

const (
	Applicants Role = iota
	Inventors
)

// Roles in column order.
var Roles = []Role{Applicants, Inventors}

// Entries returns the party list of the record for the role.
func (r PatentRecord) Entries(role Role) []AddressEntry {
	if role == Inventors {
		return r.Inventors
	}
	return r.Applicants
}

// Field is one column of an address triplet.
type Field int

const (
	Name Field = iota
	Address
	Country
)

// Fields in column order.
var Fields = []Field{Name, Address, Country}

// Get returns the value of the field.
func (e AddressEntry) Get(f Field) option.Option[string] {
	switch f {
	case Address:
		return e.Address
	case Country:
		return e.Country
	default:
		return e.Name
	}
}

// Layout names the columns of the flat table.
type Layout struct {
	DocumentID string
	Country    string
	Date       string

	Applicants string
	Inventors  string

	Name           string
	Address        string
	AddressCountry string
}

func (l Layout) role(r Role) string {
	if r == Inventors {
		return l.Inventors
	}
	return l.Applicants
}

func (l Layout) field(f Field) string {
	switch f {
	case Address:
		return l.Address
	case Country:
		return l.AddressCountry
	default:
		return l.Name
	}
}

// RoleName returns the configured name of the role.
func (l Layout) RoleName(r Role) string {
	return l.role(r)
}

// Column returns the name of the column holding field f of the entry at pos.
func (l Layout) Column(r Role, pos int, f Field) string {
	return fmt.Sprintf("%s_%d_%s", l.role(r), pos, l.field(f))
}

// Scalars returns the names of the per-record columns.
func (l Layout) Scalars() []string {
	return []string{l.DocumentID, l.Country, l.Date}
}

// AggregateRow is one group of a summary.
type AggregateRow struct {
	Key        option.Option[string]
	Count      int
	Associated string
}

// Location is the postal code and city derived from a record's first inventor.
type Location struct {
	DocumentID string
	PostalCode option.Option[string]
	City       option.Option[string]
}
