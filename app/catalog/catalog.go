// Package catalog holds the fixed set of purchasable packages. It is the only
// source of truth for checkout amounts and is never mutated after load.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const DefaultCurrency = "usd"

var ErrInvalidCatalog = errors.New("invalid catalog")

// Amounts are stored in hundredths of the major unit. Currencies whose gateway
// minor unit is not a hundredth would be charged at the wrong scale.
var nonCentCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
	"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
	"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
	"bhd": {}, "jod": {}, "kwd": {}, "omr": {}, "tnd": {},
}

type Package struct {
	ID          string
	AmountCents int64
	Currency    string
	Name        string
	Description string
}

// Amount returns the package price in major currency units.
func (p Package) Amount() decimal.Decimal {
	return decimal.New(p.AmountCents, -2)
}

type Catalog struct {
	currency string
	packages map[string]Package
	order    []string
}

func New(currency string, packages []Package) (*Catalog, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if _, ok := nonCentCurrencies[currency]; ok {
		return nil, fmt.Errorf("%w: currency %q does not use two-decimal minor units", ErrInvalidCatalog, currency)
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("%w: no packages defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		currency: currency,
		packages: make(map[string]Package, len(packages)),
		order:    make([]string, 0, len(packages)),
	}
	for _, p := range packages {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("%w: package id is required", ErrInvalidCatalog)
		}
		if p.AmountCents <= 0 {
			return nil, fmt.Errorf("%w: package %q must have a positive amount", ErrInvalidCatalog, p.ID)
		}
		if _, exists := c.packages[p.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate package %q", ErrInvalidCatalog, p.ID)
		}
		p.Currency = currency
		c.packages[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	return c, nil
}

func Default() *Catalog {
	c, err := New(DefaultCurrency, []Package{
		{ID: "small", AmountCents: 500, Name: "Paquete Pequeño", Description: "Pedidos hasta $20"},
		{ID: "medium", AmountCents: 1000, Name: "Paquete Mediano", Description: "Pedidos de $20-50"},
		{ID: "large", AmountCents: 1500, Name: "Paquete Grande", Description: "Pedidos de $50+"},
		{ID: "delivery_fee", AmountCents: 250, Name: "Tarifa de Envío", Description: "Costo de entrega estándar"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(id string) (Package, bool) {
	p, ok := c.packages[strings.TrimSpace(id)]
	return p, ok
}

func (c *Catalog) Currency() string {
	return c.currency
}

// Packages returns the packages in definition order.
func (c *Catalog) Packages() []Package {
	items := make([]Package, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, c.packages[id])
	}
	return items
}

type fileCatalog struct {
	Currency string        `yaml:"currency"`
	Packages []filePackage `yaml:"packages"`
}

type filePackage struct {
	ID          string `yaml:"id"`
	Amount      string `yaml:"amount"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadFile reads a YAML catalog definition. Amounts are decimal strings in
// major units and must not carry more than two fractional digits.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	packages := make([]Package, 0, len(doc.Packages))
	for _, item := range doc.Packages {
		cents, err := parseCents(item.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: package %q: %v", ErrInvalidCatalog, item.ID, err)
		}
		packages = append(packages, Package{
			ID:          item.ID,
			AmountCents: cents,
			Name:        strings.TrimSpace(item.Name),
			Description: strings.TrimSpace(item.Description),
		})
	}

	return New(doc.Currency, packages)
}

func parseCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, errors.New("amount has more than two decimal places")
	}
	return cents.IntPart(), nil
}
