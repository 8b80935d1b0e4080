package model

// Product is one spreadsheet row. ProductCode is unique within its File.
type Product struct {
	ID                  string  `json:"id"`
	FileID              string  `json:"fileId"`
	ProductCode         string  `json:"productCode"`
	Name                string  `json:"name"`
	OriginalDescription string  `json:"originalDescription"`
	FilteredDescription *string `json:"filteredDescription,omitempty"`
	// Changed is nil until the description has been regenerated.
	Changed *bool `json:"changed"`
}

// Regenerated reports whether the regenerator has visited the product since
// the last reset.
func (p *Product) Regenerated() bool {
	return p.Changed != nil
}
