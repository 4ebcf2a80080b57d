package prompt

import (
	"fmt"
	"os"
	"strings"
)

// Identify — фиксированная инструкция для модели: что извлечь с фото и в каком виде вернуть.
const Identify = `Provide a comprehensive plant identification analysis of the plant in the photo with the following detailed characteristics:

1. Identification Details:
- Common Name: Full common name(s) used in various regions
- Scientific Name: Complete binomial nomenclature
- Family: Botanical family classification
- Genus: Specific genus information

2. Botanical Characteristics:
- Plant Type: (e.g., herb, shrub, tree, vine)
- Growth Habit: Detailed description of plant's structure
- Leaf Description: Shape, texture, color, arrangement
- Flower Characteristics: Color, shape, blooming season
- Height and Spread: Typical mature size range

3. Ecological and Geographical Information:
- Native Region: Comprehensive geographical origin
- Climate Zones: USDA hardiness zones and preferred environments
- Habitat: Natural ecosystem and growing conditions

4. Cultivation and Care:
- Sunlight Requirements: Preferred light exposure
- Soil Preferences: Ideal soil type, pH, drainage
- Water Needs: Drought tolerance, irrigation recommendations
- Seasonal Behavior: Dormancy, flowering, fruiting periods

5. Ecological Significance:
- Ecosystem Role: Interactions with local wildlife
- Pollination Details: Pollinators and reproduction method
- Conservation Status: Rarity or environmental importance

6. Additional Context:
- Cultural Significance: Historical or traditional uses
- Interesting Botanical Facts: Unique characteristics or adaptations

Return a single JSON object that matches the schema below. Ensure the response is scientifically accurate and informative. No text outside the JSON.`

// RecordSchema — JSON Schema ответа (plant.Record).
const RecordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "commonName": {"type": "string"},
    "scientificName": {"type": "string"},
    "family": {"type": "string"},
    "genus": {"type": "string"},
    "plantType": {"type": "string"},
    "growthHabit": {"type": "string"},
    "leafDescription": {"type": "string"},
    "flowerCharacteristics": {"type": "string"},
    "dimensions": {
      "type": "object",
      "properties": {
        "height": {"type": "string"},
        "spread": {"type": "string"}
      }
    },
    "nativeRegion": {"type": "string"},
    "climateZones": {"type": "array", "items": {"type": "string"}},
    "habitat": {"type": "string"},
    "cultivation": {
      "type": "object",
      "properties": {
        "sunlight": {"type": "string"},
        "soil": {"type": "string"},
        "waterNeeds": {"type": "string"},
        "seasonalBehavior": {"type": "string"}
      }
    },
    "ecologicalRole": {
      "type": "object",
      "properties": {
        "pollinators": {"type": "array", "items": {"type": "string"}},
        "wildlifeInteractions": {"type": "string"},
        "conservationStatus": {"type": "string"}
      }
    },
    "culturalSignificance": {"type": "string"},
    "botanicalFacts": {"type": "string"},
    "description": {"type": "string"}
  }
}`

// Load возвращает текст инструкции: из файла, если путь задан, иначе встроенный.
func Load(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Identify, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt %q: %w", path, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("prompt %q is empty", path)
	}
	return s, nil
}

// WithSchema склеивает инструкцию и схему в один текст для движков без отдельного system-канала.
func WithSchema(instruction string) string {
	return instruction + "\n\nrecord.schema.json:\n" + RecordSchema
}
