package telegram

import (
	"strings"
	"unicode/utf8"

	"plant-id/api/internal/plant"
)

const (
	maxMessageRunes = 3900
	maxFieldRunes   = 1000
)

// card собирает сообщение целыми строками: строка, не влезающая в лимит, не пишется,
// поэтому разметка *...* и _..._ никогда не рвётся.
type card struct {
	b    strings.Builder
	n    int
	full bool
}

func (c *card) add(line string) {
	if c.full {
		return
	}
	r := utf8.RuneCountInString(line)
	if c.n+r > maxMessageRunes {
		c.full = true
		c.b.WriteString("\n…")
		return
	}
	c.b.WriteString(line)
	c.n += r
}

// FormatRecord рендерит карточку растения в Markdown; пустые поля — «—».
func FormatRecord(rec plant.Record) string {
	var c card

	title := rec.Title()
	if title == "" {
		title = "Unknown plant"
	}
	c.add("🌿 *" + field(title) + "*\n")
	if rec.CommonName != "" && rec.ScientificName != "" {
		c.add("_" + field(string(rec.ScientificName)) + "_\n")
	}
	if d := strings.TrimSpace(string(rec.Description)); d != "" {
		c.add("\n" + field(d) + "\n")
	}

	c.section("Identification",
		"Family", string(rec.Family),
		"Genus", string(rec.Genus),
		"Plant type", string(rec.PlantType),
	)
	c.section("Botanical characteristics",
		"Growth habit", string(rec.GrowthHabit),
		"Leaves", string(rec.LeafDescription),
		"Flowers", string(rec.FlowerCharacteristics),
		"Height", string(rec.Dimensions.Height),
		"Spread", string(rec.Dimensions.Spread),
	)
	c.section("Ecology & geography",
		"Native region", string(rec.NativeRegion),
		"Climate zones", strings.Join(rec.ClimateZones, ", "),
		"Habitat", string(rec.Habitat),
	)
	c.section("Cultivation",
		"Sunlight", string(rec.Cultivation.Sunlight),
		"Soil", string(rec.Cultivation.Soil),
		"Water", string(rec.Cultivation.WaterNeeds),
		"Seasonal behavior", string(rec.Cultivation.SeasonalBehavior),
	)
	c.section("Ecological role",
		"Pollinators", strings.Join(rec.EcologicalRole.Pollinators, ", "),
		"Wildlife", string(rec.EcologicalRole.WildlifeInteractions),
		"Conservation status", string(rec.EcologicalRole.ConservationStatus),
	)
	c.section("Additional context",
		"Cultural significance", string(rec.CulturalSignificance),
		"Botanical facts", string(rec.BotanicalFacts),
	)
	return c.b.String()
}

// section пишет пары «название: значение».
func (c *card) section(title string, kv ...string) {
	c.add("\n*" + title + "*\n")
	for i := 0; i+1 < len(kv); i += 2 {
		v := strings.TrimSpace(kv[i+1])
		if v == "" {
			v = "—"
		}
		c.add("• " + kv[i] + ": " + field(v) + "\n")
	}
}

// field режет сырое значение до maxFieldRunes и только потом экранирует.
func field(s string) string {
	return esc(truncate(s, maxFieldRunes))
}

// лёгкое экранирование для Markdown
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
