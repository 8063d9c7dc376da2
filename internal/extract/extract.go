package extract

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/IBM/fp-go/v2/option"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
)

// Paths into the register schema. Prefix p is bound to the configured namespace.
const (
	docNumberPath = "//p:application-reference/p:document-id/p:doc-number"
	countryPath   = "//p:application-reference/p:document-id/p:country"
	datePath      = "//p:application-reference/p:document-id/p:date"
	applicantPath = "//p:parties/p:applicants/p:applicant"
	partiesPath   = "//p:parties"
	inventorPath  = "p:inventors/p:inventor"
	namePath      = ".//p:addressbook/p:name"
	addressPath   = ".//p:addressbook/p:address/p:address-1"
	partyCtryPath = ".//p:addressbook/p:address/p:country"
)

type queries struct {
	docNumber, country, date *xpath.Expr
	applicants, parties      *xpath.Expr
	inventors                *xpath.Expr
	name, address, partyCtry *xpath.Expr
}

// Extractor turns register XML documents into patent records.
type Extractor struct {
	namespace string
	q         queries
}

func NewExtractor(namespace string) (*Extractor, error) {
	ns := map[string]string{"p": namespace}
	var err error
	compile := func(expr string) *xpath.Expr {
		if err != nil {
			return nil
		}
		var e *xpath.Expr
		e, err = xpath.CompileWithNS(expr, ns)
		if err != nil {
			err = fmt.Errorf("compile %s: %w", expr, err)
		}
		return e
	}
	q := queries{
		docNumber:  compile(docNumberPath),
		country:    compile(countryPath),
		date:       compile(datePath),
		applicants: compile(applicantPath),
		parties:    compile(partiesPath),
		inventors:  compile(inventorPath),
		name:       compile(namePath),
		address:    compile(addressPath),
		partyCtry:  compile(partyCtryPath),
	}
	if err != nil {
		return nil, err
	}
	return &Extractor{namespace: namespace, q: q}, nil
}

// ExtractFile reads path as raw bytes and extracts its record. Errors carry the path.
func (e *Extractor) ExtractFile(path string) IOE.IOEither[error, models.PatentRecord] {
	return F.Pipe2(
		IOE.Eitherize1(os.ReadFile)(path),
		IOE.Chain(func(raw []byte) IOE.IOEither[error, models.PatentRecord] {
			return IOE.TryCatchError(func() (models.PatentRecord, error) {
				return e.Extract(raw)
			})
		}),
		IOE.MapLeft[models.PatentRecord](func(err error) error {
			if mf, ok := err.(*models.MissingFieldError); ok {
				mf.File = path
				return mf
			}
			return fmt.Errorf("extract %s: %w", path, err)
		}),
	)
}

// Extract parses one document. The parser picks the character set from the
// document's own encoding declaration.
func (e *Extractor) Extract(raw []byte) (models.PatentRecord, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return models.PatentRecord{}, fmt.Errorf("parse xml: %w", err)
	}

	docNumber, err := required(doc, e.q.docNumber, "doc-number", docNumberPath)
	if err != nil {
		return models.PatentRecord{}, err
	}
	country, err := required(doc, e.q.country, "country", countryPath)
	if err != nil {
		return models.PatentRecord{}, err
	}
	date, err := required(doc, e.q.date, "date", datePath)
	if err != nil {
		return models.PatentRecord{}, err
	}

	var inventors []*xmlquery.Node
	if parties := xmlquery.QuerySelector(doc, e.q.parties); parties != nil {
		inventors = xmlquery.QuerySelectorAll(parties, e.q.inventors)
	}

	return models.PatentRecord{
		DocumentID: docNumber,
		Country:    country,
		FilingDate: date,
		Applicants: e.addresses(xmlquery.QuerySelectorAll(doc, e.q.applicants)),
		Inventors:  e.addresses(inventors),
	}, nil
}

func (e *Extractor) addresses(parties []*xmlquery.Node) []models.AddressEntry {
	entries := make([]models.AddressEntry, 0, len(parties))
	for _, party := range parties {
		entries = append(entries, models.AddressEntry{
			Name:    optionalText(party, e.q.name),
			Address: optionalText(party, e.q.address),
			Country: optionalText(party, e.q.partyCtry),
		})
	}
	return entries
}

func required(doc *xmlquery.Node, expr *xpath.Expr, field, path string) (string, error) {
	n := xmlquery.QuerySelector(doc, expr)
	if n == nil {
		return "", &models.MissingFieldError{Field: field, Path: path}
	}
	return strings.TrimSpace(n.InnerText()), nil
}

// optionalText is None when the node is absent or carries no text.
func optionalText(parent *xmlquery.Node, expr *xpath.Expr) option.Option[string] {
	return F.Pipe2(
		option.FromNillable(xmlquery.QuerySelector(parent, expr)),
		option.Map(func(n *xmlquery.Node) string { return strings.TrimSpace(n.InnerText()) }),
		option.Chain(func(s string) option.Option[string] {
			if s == "" {
				return option.None[string]()
			}
			return option.Some(s)
		}),
	)
}
