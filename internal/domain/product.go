package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Stored quantities are 32-bit and money is NUMERIC(12, 2).
const (
	MaxQuantity = math.MaxInt32
	moneyScale  = 2
)

var moneyLimit = decimal.New(1, 10)

// ValidMoney reports whether d can be stored without rounding or overflow.
func ValidMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(moneyScale)) && d.Abs().LessThan(moneyLimit)
}

type Category string

const (
	CategoryPowerTools       Category = "Precision Power Tools"
	CategoryBuildingMaterial Category = "Building Materials"
	CategoryFabrication      Category = "Fabrication Tools"
	CategoryPipesAndSteel    Category = "Pipes and Structural Steel"
	CategoryDoorsAndPlates   Category = "Doors And Plates"
	CategorySafetyGear       Category = "Accessories & Safety Gear"
)

var Categories = []Category{
	CategoryPowerTools,
	CategoryBuildingMaterial,
	CategoryFabrication,
	CategoryPipesAndSteel,
	CategoryDoorsAndPlates,
	CategorySafetyGear,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Category    Category        `json:"category"`
	Images      []string        `json:"images"`
	IsSold      bool            `json:"isSold"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Image returns the first product image, or "" when there is none.
func (p *Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
