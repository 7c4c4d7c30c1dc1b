package carquery

// normalize maps raw upstream trims onto a Detail.
//
// Summary fields come from the first trim and treat a zero or empty value
// as absent. The trims list keeps every value as reported, zeros included.
func normalize(mk, model string, year int, raw []rawTrim) *Detail {
	d := &Detail{
		Make:  mk,
		Model: model,
		Year:  year,
		Enrichment: Enrichment{
			Trims: make([]Trim, 0, len(raw)),
		},
	}
	if len(raw) == 0 {
		return d
	}

	first := raw[0]
	d.Engine = presentString(first.EngineName)
	d.Transmission = presentString(first.TransmissionName)
	d.Drive = presentString(first.DriveName)
	d.Doors = presentInt(first.Doors)
	d.Seats = presentInt(first.Seats)

	fe := &FuelEconomy{
		City:     presentFloat(first.MPGCity),
		Highway:  presentFloat(first.MPGHwy),
		Combined: presentFloat(first.MPGCombined),
	}
	if !fe.empty() {
		d.FuelEconomy = fe
	}
	price := &Price{
		MSRP:    presentFloat(first.PriceMSRP),
		Invoice: presentFloat(first.PriceInvoice),
	}
	if !price.empty() {
		d.Price = price
	}

	for _, t := range raw {
		d.Trims = append(d.Trims, Trim{
			ID:               string(t.ModelID),
			ModelDisplayName: string(t.MakeDisplay),
			TrimName:         string(t.Trim),
			BodyTypeName:     string(t.Body),
			EngineName:       string(t.EngineName),
			TransmissionName: string(t.TransmissionName),
			DriveTypeName:    string(t.DriveName),
			FuelTypeName:     string(t.FuelName),
			Doors:            int(t.Doors),
			SeatCount:        int(t.Seats),
			MSRP:             float64(t.PriceMSRP),
			Invoice:          float64(t.PriceInvoice),
			MPGCity:          float64(t.MPGCity),
			MPGHwy:           float64(t.MPGHwy),
			MPGCombined:      float64(t.MPGCombined),
		})
	}
	return d
}

func presentString(s text) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func presentInt(n number) *int {
	if int(n) == 0 {
		return nil
	}
	v := int(n)
	return &v
}

func presentFloat(n number) *float64 {
	if n == 0 {
		return nil
	}
	v := float64(n)
	return &v
}
