package core

// PaymentSummary splits a grand total by payment bucket.
// Cash + Card + MailOrder == GrandTotal for every input.
type PaymentSummary struct {
	Cash       Money `json:"cash"`
	Card       Money `json:"card"`
	MailOrder  Money `json:"mailOrder"`
	GrandTotal Money `json:"grandTotal"`
}

// CategoryTotals is the per-category breakdown of a report.
type CategoryTotals struct {
	Total        Money    `json:"total"`
	Cash         Money    `json:"cash"`
	Card         Money    `json:"card"`
	MailOrder    Money    `json:"mailOrder"`
	ProductNames []string `json:"productNames"`
}

// CategorySummary maps a category to its totals.
type CategorySummary map[Category]*CategoryTotals

// CategoryAmount pairs a category with its totals, for ordered output.
type CategoryAmount struct {
	Category Category `json:"category"`
	CategoryTotals
}

// Report aggregates every sale in a date range.
type Report struct {
	Range      DateRange        `json:"range"`
	Count      int              `json:"count"`
	Payments   PaymentSummary   `json:"payments"`
	Categories []CategoryAmount `json:"categories"`
}

// SummarizeByPaymentMethod totals sales per payment bucket. Card is derived
// as GrandTotal - Cash - MailOrder so folded methods are never lost.
func SummarizeByPaymentMethod(sales []Sale) PaymentSummary {
	var s PaymentSummary
	for _, sale := range sales {
		s.GrandTotal = s.GrandTotal.Add(sale.Amount)
		switch sale.PaymentMethod.Bucket() {
		case BucketCash:
			s.Cash = s.Cash.Add(sale.Amount)
		case BucketMailOrder:
			s.MailOrder = s.MailOrder.Add(sale.Amount)
		}
	}
	s.Card = s.GrandTotal.Sub(s.Cash).Sub(s.MailOrder)
	return s
}

// SummarizeByCategory groups sales by category. Sales whose category is
// missing or outside the catalog land in OtherCategory.
func SummarizeByCategory(sales []Sale, c Catalog) CategorySummary {
	out := make(CategorySummary)
	for _, sale := range sales {
		cat := sale.Category
		if !c.Has(cat) {
			cat = OtherCategory
		}
		t, ok := out[cat]
		if !ok {
			t = &CategoryTotals{ProductNames: []string{}}
			out[cat] = t
		}
		t.Total = t.Total.Add(sale.Amount)
		switch sale.PaymentMethod.Bucket() {
		case BucketCash:
			t.Cash = t.Cash.Add(sale.Amount)
		case BucketMailOrder:
			t.MailOrder = t.MailOrder.Add(sale.Amount)
		}
		if sale.ProductName != "" {
			t.ProductNames = append(t.ProductNames, sale.ProductName)
		}
	}
	for _, t := range out {
		t.Card = t.Total.Sub(t.Cash).Sub(t.MailOrder)
	}
	return out
}

// Sorted lists categories in catalog order with OtherCategory last.
func (cs CategorySummary) Sorted(c Catalog) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(cs))
	for _, cat := range c.Categories() {
		if t, ok := cs[cat]; ok {
			out = append(out, CategoryAmount{Category: cat, CategoryTotals: *t})
		}
	}
	if t, ok := cs[OtherCategory]; ok {
		out = append(out, CategoryAmount{Category: OtherCategory, CategoryTotals: *t})
	}
	return out
}

// BuildReport aggregates sales for rng using the catalog's categories.
func BuildReport(rng DateRange, sales []Sale, c Catalog) Report {
	return Report{
		Range:      rng,
		Count:      len(sales),
		Payments:   SummarizeByPaymentMethod(sales),
		Categories: SummarizeByCategory(sales, c).Sorted(c),
	}
}
