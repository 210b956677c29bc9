package services

// Place ist der aufgelöste Ort eines Hechos.
type Place struct {
	Country      string
	Province     string
	Municipality string
}

// PlaceResolver übersetzt Koordinaten in Land/Provinz/Gemeinde.
type PlaceResolver interface {
	Resolve(lat, lon float64) Place
}

type boundingBox struct {
	minLat, maxLat float64
	minLon, maxLon float64
	place          Place
}

var knownAreas = []boundingBox{
	{-35, -34, -59, -58, Place{"Argentina", "Buenos Aires", "CABA"}},
	{-40, -38, -64, -62, Place{"Argentina", "Río Negro", "General Roca"}},
}

// BoundingBoxResolver kennt nur eine feste Liste von Rechtecken; alles andere ist "Desconocido".
type BoundingBoxResolver struct{}

func (BoundingBoxResolver) Resolve(lat, lon float64) Place {
	for _, b := range knownAreas {
		if lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon {
			return b.place
		}
	}
	return Place{Country: "Argentina", Province: "Provincia Desconocida", Municipality: "Municipio Desconocido"}
}
