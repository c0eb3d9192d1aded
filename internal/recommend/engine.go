// Package recommend derives advisory entries and summary statistics from a
// grower's scan history. Everything here is a pure function of the records.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vexmx/avotex/internal/models"
)

// MinScansForAccuracy is the history size under which the grower is asked to
// keep scanning.
const MinScansForAccuracy = 10

// diseaseAdvice maps a lowercase keyword found in a label to its warning.
var diseaseAdvice = []struct {
	keyword string
	entry   models.AdvisoryEntry
}{
	{
		keyword: "antracnosis",
		entry: models.AdvisoryEntry{
			ID:       "disease-antracnosis",
			Text:     "Se detecta una presencia notable de Antracnosis. Prioriza la poda sanitaria para mejorar la ventilación y considera fungicidas a base de cobre.",
			Severity: models.SeverityWarning,
		},
	},
	{
		keyword: "roya",
		entry: models.AdvisoryEntry{
			ID:       "disease-roya",
			Text:     "La Roya aparece entre tus diagnósticos. Asegura un buen drenaje y aplica tratamientos con azufre o fungicidas específicos.",
			Severity: models.SeverityWarning,
		},
	},
}

// Recommend returns the advisory entries for a scan history, in priority
// order. The order of records does not matter.
func Recommend(records []models.ScanRecord) []models.AdvisoryEntry {
	total := len(records)
	if total == 0 {
		return []models.AdvisoryEntry{{
			ID:       "start-scanning",
			Text:     `Realiza algunos escaneos en la pestaña "Escanear" para empezar a recibir recomendaciones personalizadas.`,
			Severity: models.SeverityInfo,
		}}
	}

	diseases := rankDiseases(records)
	unhealthy := 0
	for _, d := range diseases {
		unhealthy += d.Count
	}
	ratio := float64(unhealthy) / float64(total)
	pct := percent(ratio)

	var out []models.AdvisoryEntry
	if total < MinScansForAccuracy {
		out = append(out, models.AdvisoryEntry{
			ID:       "scan-more",
			Text:     fmt.Sprintf("Has realizado %d escaneos. ¡Sigue así! Se recomiendan al menos 20 para un análisis más preciso.", total),
			Severity: models.SeverityInfo,
		})
	}

	switch {
	case ratio == 0:
		out = append(out, models.AdvisoryEntry{
			ID:       "tier-healthy",
			Text:     "¡Excelente trabajo! Todos tus escaneos indican una huerta saludable. No se requieren acciones correctivas.",
			Severity: models.SeverityPositive,
		})
	case ratio <= 0.20:
		out = append(out, models.AdvisoryEntry{
			ID:       "tier-low",
			Text:     fmt.Sprintf("Bajo riesgo detectado (%d%% de escaneos no saludables). Considera tratamientos preventivos y monitoreo constante.", pct),
			Severity: models.SeverityWarning,
		})
	case ratio <= 0.50:
		out = append(out, models.AdvisoryEntry{
			ID:       "tier-moderate",
			Text:     fmt.Sprintf("Riesgo moderado (%d%% de escaneos no saludables). Es momento de aplicar tratamientos específicos en las zonas afectadas.", pct),
			Severity: models.SeverityDanger,
		})
	default:
		out = append(out, models.AdvisoryEntry{
			ID:       "tier-high",
			Text:     fmt.Sprintf("¡ALERTA ALTA! Más de la mitad de tus escaneos (%d%%) muestran problemas. Se recomienda una acción correctiva general y consultar a un agrónomo.", pct),
			Severity: models.SeverityDanger,
		})
	}

	out = append(out, diseaseEntries(diseases)...)

	if ratio > 0.10 {
		out = append(out,
			models.AdvisoryEntry{
				ID:       "tool-sanitation",
				Text:     "Recuerda desinfectar tus herramientas de poda entre cada árbol para evitar la propagación de enfermedades.",
				Severity: models.SeverityInfo,
			},
			models.AdvisoryEntry{
				ID:       "irrigation",
				Text:     "Revisa el sistema de riego. El exceso de humedad en el follaje puede favorecer la aparición de hongos.",
				Severity: models.SeverityInfo,
			},
		)
	}

	if ratio == 0 {
		out = append(out, models.AdvisoryEntry{
			ID:       "soil-analysis",
			Text:     "Tu manejo actual es muy bueno. Considera realizar un análisis de suelo para mantener los nutrientes en niveles óptimos.",
			Severity: models.SeverityPositive,
		})
	} else {
		out = append(out, models.AdvisoryEntry{
			ID:       "log-treatments",
			Text:     "Documenta las zonas tratadas en tu agenda personal para un mejor seguimiento de la efectividad.",
			Severity: models.SeverityInfo,
		})
	}
	return out
}

// diseaseEntries emits each keyword warning once, ordered by the rank of the
// first diseased label that contains the keyword. Every diseased label is
// checked, not only the most frequent one: a history with 3 Antracnosis and 1
// Roya warns about both, and a minority Roya behind an unrecognised top
// disease still gets its warning. The Roya text is worded so it holds when
// Roya is not the leading problem.
func diseaseEntries(diseases []LabelCount) []models.AdvisoryEntry {
	var out []models.AdvisoryEntry
	emitted := make(map[string]bool, len(diseaseAdvice))
	for _, d := range diseases {
		lower := strings.ToLower(d.Label)
		for _, advice := range diseaseAdvice {
			if emitted[advice.keyword] || !strings.Contains(lower, advice.keyword) {
				continue
			}
			emitted[advice.keyword] = true
			out = append(out, advice.entry)
		}
	}
	return out
}

// LabelCount is the number of scans carrying a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// rankDiseases counts the non-healthy labels, highest count first and
// lexicographic on ties.
func rankDiseases(records []models.ScanRecord) []LabelCount {
	counts := make(map[string]int)
	for _, r := range records {
		if !r.Healthy() {
			counts[r.Label]++
		}
	}
	return sortCounts(counts)
}

func sortCounts(counts map[string]int) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// MostFrequentDisease returns the top-ranked non-healthy label, if any.
func MostFrequentDisease(records []models.ScanRecord) (string, bool) {
	ranked := rankDiseases(records)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].Label, true
}

func percent(ratio float64) int {
	return int(math.Round(ratio * 100))
}
