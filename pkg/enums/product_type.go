package enums

// ProductType is the subset of catalog product types the order engine cares
// about during the confirmation cascade. The catalog itself lives outside
// this module.
type ProductType string

const (
	ProductTypeSimple    ProductType = "SIMPLE"
	ProductTypeTokenized ProductType = "TOKENIZED"
	ProductTypePlan      ProductType = "PLAN"
)

func (p ProductType) String() string {
	return string(p)
}
