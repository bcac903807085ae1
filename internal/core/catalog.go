package core

import (
	"fmt"
	"strings"
)

const (
	Textile   Category = "Tekstil"
	Curtain   Category = "Perde"
	Outlet    Category = "Outlet"
	Wholesale Category = "Toptan"

	// OtherCategory collects records whose category is missing or not in
	// the catalog. It is never a valid input.
	OtherCategory Category = "Diğer"
)

const (
	Cash      PaymentMethod = "Nakit"
	Card      PaymentMethod = "Kredi Kartı"
	MailOrder PaymentMethod = "Mail Order"

	// Legacy labels still present in older records.
	LegacyCard   PaymentMethod = "K.K."
	BankTransfer PaymentMethod = "IBAN"
)

// PaymentBucket is the aggregation bucket a payment method counts toward.
type PaymentBucket int

const (
	BucketCard PaymentBucket = iota
	BucketCash
	BucketMailOrder
)

var paymentMethods = []PaymentMethod{Cash, Card, MailOrder, LegacyCard, BankTransfer}

// PaymentMethods lists every accepted payment method, canonical ones first.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentMethods))
	copy(out, paymentMethods)
	return out
}

// FoldPaymentMethod maps a payment method to its bucket. Cash and mail
// order are matched exactly; every other value, including legacy and
// unknown labels, counts as card so that no amount leaves the totals.
func FoldPaymentMethod(p PaymentMethod) PaymentBucket {
	switch p {
	case Cash:
		return BucketCash
	case MailOrder:
		return BucketMailOrder
	default:
		return BucketCard
	}
}

func (p PaymentMethod) Bucket() PaymentBucket { return FoldPaymentMethod(p) }

func (p PaymentMethod) Validate() error {
	for _, m := range paymentMethods {
		if p == m {
			return nil
		}
	}
	return ErrUnknownPaymentMethod
}

// Catalog is the closed set of sale categories. The detail category is the
// one whose records must carry a product name.
type Catalog struct {
	categories []Category
	detail     Category
}

// DefaultCatalog returns the shop's standard categories with Curtain as the
// detail category.
func DefaultCatalog() Catalog {
	return Catalog{
		categories: []Category{Textile, Curtain, Outlet, Wholesale},
		detail:     Curtain,
	}
}

// NewCatalog builds a catalog from configured labels. detail may be empty.
func NewCatalog(labels []string, detail string) (Catalog, error) {
	var c Catalog
	seen := make(map[Category]bool)
	for _, l := range labels {
		cat := Category(strings.TrimSpace(l))
		if cat == "" || seen[cat] {
			continue
		}
		if cat == OtherCategory {
			return Catalog{}, fmt.Errorf("category %q is reserved", cat)
		}
		seen[cat] = true
		c.categories = append(c.categories, cat)
	}
	if len(c.categories) == 0 {
		return Catalog{}, fmt.Errorf("catalog needs at least one category")
	}
	if d := Category(strings.TrimSpace(detail)); d != "" {
		if !seen[d] {
			return Catalog{}, fmt.Errorf("detail category %q not in catalog", d)
		}
		c.detail = d
	}
	return c, nil
}

func (c Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c Catalog) Detail() Category { return c.detail }

func (c Catalog) Has(cat Category) bool {
	for _, k := range c.categories {
		if k == cat {
			return true
		}
	}
	return false
}

func (c Catalog) RequiresProductName(cat Category) bool {
	return c.detail != "" && cat == c.detail
}

// Validate checks typed fields against the catalog.
func (c Catalog) Validate(f SaleFields) error {
	if err := f.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if err := f.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if !c.Has(f.Category) {
		return invalid("category", ErrUnknownCategory)
	}
	if err := f.PaymentMethod.Validate(); err != nil {
		return invalid("paymentMethod", err)
	}
	if c.RequiresProductName(f.Category) && strings.TrimSpace(f.ProductName) == "" {
		return invalid("productName", ErrMissingProductName)
	}
	return nil
}

// Normalize parses and validates a draft. An empty date means today.
func (c Catalog) Normalize(d Draft, today Date) (SaleFields, error) {
	var f SaleFields

	if strings.TrimSpace(d.Date) == "" {
		f.Date = today
	} else {
		date, err := ParseDate(d.Date)
		if err != nil {
			return SaleFields{}, invalid("date", err)
		}
		f.Date = date
	}

	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return SaleFields{}, invalid("amount", err)
	}
	f.Amount = amount
	f.Category = Category(strings.TrimSpace(d.Category))
	f.PaymentMethod = PaymentMethod(strings.TrimSpace(d.PaymentMethod))
	f.ProductName = strings.TrimSpace(d.ProductName)

	if err := c.Validate(f); err != nil {
		return SaleFields{}, err
	}
	return f, nil
}
