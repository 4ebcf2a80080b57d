package plant

// Record — нормализованный результат идентификации растения.
// Поля, которых нет в ответе модели, остаются пустыми строками/срезами.
type Record struct {
	CommonName            Text           `json:"commonName"`
	ScientificName        Text           `json:"scientificName"`
	Family                Text           `json:"family"`
	Genus                 Text           `json:"genus"`
	PlantType             Text           `json:"plantType"`
	GrowthHabit           Text           `json:"growthHabit"`
	LeafDescription       Text           `json:"leafDescription"`
	FlowerCharacteristics Text           `json:"flowerCharacteristics"`
	Dimensions            Dimensions     `json:"dimensions"`
	NativeRegion          Text           `json:"nativeRegion"`
	ClimateZones          List           `json:"climateZones"`
	Habitat               Text           `json:"habitat"`
	Cultivation           Cultivation    `json:"cultivation"`
	EcologicalRole        EcologicalRole `json:"ecologicalRole"`
	CulturalSignificance  Text           `json:"culturalSignificance"`
	BotanicalFacts        Text           `json:"botanicalFacts"`
	Description           Text           `json:"description"`
}

// Dimensions — описательные размеры взрослого растения ("1-2 m"), не числа.
type Dimensions struct {
	Height Text `json:"height"`
	Spread Text `json:"spread"`
}

type Cultivation struct {
	Sunlight         Text `json:"sunlight"`
	Soil             Text `json:"soil"`
	WaterNeeds       Text `json:"waterNeeds"`
	SeasonalBehavior Text `json:"seasonalBehavior"`
}

type EcologicalRole struct {
	Pollinators          List `json:"pollinators"`
	WildlifeInteractions Text `json:"wildlifeInteractions"`
	ConservationStatus   Text `json:"conservationStatus"`
}

func (d *Dimensions) UnmarshalJSON(b []byte) error {
	type plain Dimensions
	return decodeObject(b, (*plain)(d))
}

func (c *Cultivation) UnmarshalJSON(b []byte) error {
	type plain Cultivation
	return decodeObject(b, (*plain)(c))
}

func (e *EcologicalRole) UnmarshalJSON(b []byte) error {
	type plain EcologicalRole
	return decodeObject(b, (*plain)(e))
}

// Title — имя для заголовка: общепринятое, иначе научное.
func (r Record) Title() string {
	if r.CommonName != "" {
		return string(r.CommonName)
	}
	return string(r.ScientificName)
}

// withDefaults гарантирует, что срезы не nil: потребители не должны отличать
// «нет поля» от «пустого поля».
func (r Record) withDefaults() Record {
	if r.ClimateZones == nil {
		r.ClimateZones = List{}
	}
	if r.EcologicalRole.Pollinators == nil {
		r.EcologicalRole.Pollinators = List{}
	}
	return r
}
