package carquery

// Detail is the normalized response for one (make, model, year): the echoed
// identity plus whatever enrichment upstream reported.
type Detail struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Enrichment
}

// Enrichment is the part of a Detail that is not recoverable from the
// local dataset. Nil pointers mean the field is absent: upstream either
// did not report it or reported a zero/empty value.
type Enrichment struct {
	Engine       *string      `json:"engine,omitempty"`
	Transmission *string      `json:"transmission,omitempty"`
	Drive        *string      `json:"drive,omitempty"`
	Doors        *int         `json:"doors,omitempty"`
	Seats        *int         `json:"seats,omitempty"`
	FuelEconomy  *FuelEconomy `json:"fuelEconomy,omitempty"`
	Price        *Price       `json:"price,omitempty"`
	Trims        []Trim       `json:"trims"`
}

// FuelEconomy is in miles per gallon.
type FuelEconomy struct {
	City     *float64 `json:"city,omitempty"`
	Highway  *float64 `json:"highway,omitempty"`
	Combined *float64 `json:"combined,omitempty"`
}

func (f *FuelEconomy) empty() bool {
	return f.City == nil && f.Highway == nil && f.Combined == nil
}

// Price is in US dollars.
type Price struct {
	MSRP    *float64 `json:"msrp,omitempty"`
	Invoice *float64 `json:"invoice,omitempty"`
}

func (p *Price) empty() bool {
	return p.MSRP == nil && p.Invoice == nil
}

// Trim is one upstream configuration. Values are passed through as
// reported, zeros included.
type Trim struct {
	ID               string  `json:"id"`
	ModelDisplayName string  `json:"modelDisplayName"`
	TrimName         string  `json:"trimName"`
	BodyTypeName     string  `json:"bodyTypeName"`
	EngineName       string  `json:"engineName"`
	TransmissionName string  `json:"transmissionName"`
	DriveTypeName    string  `json:"driveTypeName"`
	FuelTypeName     string  `json:"fuelTypeName"`
	Doors            int     `json:"doors"`
	SeatCount        int     `json:"seatCount"`
	MSRP             float64 `json:"msrp"`
	Invoice          float64 `json:"invoice"`
	MPGCity          float64 `json:"mpgCity"`
	MPGHwy           float64 `json:"mpgHwy"`
	MPGCombined      float64 `json:"mpgCombined"`
}

// Clone returns a deep copy of e.
func (e *Enrichment) Clone() *Enrichment {
	if e == nil {
		return nil
	}
	c := *e
	c.Engine = clonePtr(e.Engine)
	c.Transmission = clonePtr(e.Transmission)
	c.Drive = clonePtr(e.Drive)
	c.Doors = clonePtr(e.Doors)
	c.Seats = clonePtr(e.Seats)
	if e.FuelEconomy != nil {
		c.FuelEconomy = &FuelEconomy{
			City:     clonePtr(e.FuelEconomy.City),
			Highway:  clonePtr(e.FuelEconomy.Highway),
			Combined: clonePtr(e.FuelEconomy.Combined),
		}
	}
	if e.Price != nil {
		c.Price = &Price{MSRP: clonePtr(e.Price.MSRP), Invoice: clonePtr(e.Price.Invoice)}
	}
	if e.Trims != nil {
		c.Trims = append(make([]Trim, 0, len(e.Trims)), e.Trims...)
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
