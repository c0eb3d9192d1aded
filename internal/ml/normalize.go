package ml

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/vexmx/avotex/internal/models"
)

// responseShape is one of the body layouts the classification service is
// known to reply with. decode reports ok only for a structurally valid match.
type responseShape interface {
	name() string
	decode(body []byte) (models.PredictionResult, bool)
}

// shapes are tried in this order; the first valid match wins.
var shapes = []responseShape{
	classNameShape{},
	nestedPredictionsShape{},
	labelScoreShape{},
}

// Normalize maps a classifier response body onto a PredictionResult.
func Normalize(body []byte) (models.PredictionResult, bool) {
	pred, _, ok := normalize(body)
	return pred, ok
}

// normalize also reports which shape matched.
func normalize(body []byte) (models.PredictionResult, string, bool) {
	if len(body) == 0 {
		return models.PredictionResult{}, "", false
	}
	for _, s := range shapes {
		if pred, ok := s.decode(body); ok {
			return pred, s.name(), true
		}
	}
	return models.PredictionResult{}, "", false
}

// {"class_name": "Antracnosis", "confidence": 0.91, "class_index": 0}
type classNameShape struct{}

func (classNameShape) name() string { return "class_name" }

func (classNameShape) decode(body []byte) (models.PredictionResult, bool) {
	var raw struct {
		ClassName  *string  `json:"class_name"`
		Confidence *float64 `json:"confidence"`
		ClassIndex *float64 `json:"class_index"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.PredictionResult{}, false
	}
	if raw.ClassName == nil || strings.TrimSpace(*raw.ClassName) == "" || raw.Confidence == nil {
		return models.PredictionResult{}, false
	}
	return models.PredictionResult{
		Label:      *raw.ClassName,
		Score:      *raw.Confidence,
		ClassIndex: classIndex(raw.ClassIndex),
	}, true
}

// classIndex keeps integral indexes, including ones serialized as 1.0.
// Anything else is dropped; the index is optional.
func classIndex(v *float64) *int {
	if v == nil || *v != math.Trunc(*v) || math.IsInf(*v, 0) {
		return nil
	}
	i := int(*v)
	return &i
}

// {"predictions": [{"predictions": [{"class": "Costra", "confidence": 0.8, "class_id": 1}]}]}
type nestedPredictionsShape struct{}

func (nestedPredictionsShape) name() string { return "predictions" }

func (nestedPredictionsShape) decode(body []byte) (models.PredictionResult, bool) {
	type entry struct {
		Class      *string  `json:"class"`
		Label      *string  `json:"label"`
		Confidence *float64 `json:"confidence"`
		Score      *float64 `json:"score"`
		ClassID    *float64 `json:"class_id"`
	}
	var raw struct {
		Predictions []struct {
			Predictions []entry `json:"predictions"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.PredictionResult{}, false
	}

	var best models.PredictionResult
	found := false
	for _, outer := range raw.Predictions {
		for _, e := range outer.Predictions {
			label := e.Class
			if label == nil {
				label = e.Label
			}
			score := e.Confidence
			if score == nil {
				score = e.Score
			}
			if label == nil || strings.TrimSpace(*label) == "" || score == nil {
				continue
			}
			if !found || *score > best.Score {
				best = models.PredictionResult{Label: *label, Score: *score, ClassIndex: classIndex(e.ClassID)}
				found = true
			}
		}
	}
	return best, found
}

// {"label": "Saludable", "score": 0.97}
type labelScoreShape struct{}

func (labelScoreShape) name() string { return "label_score" }

func (labelScoreShape) decode(body []byte) (models.PredictionResult, bool) {
	var raw struct {
		Label *string  `json:"label"`
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.PredictionResult{}, false
	}
	if raw.Label == nil || strings.TrimSpace(*raw.Label) == "" || raw.Score == nil {
		return models.PredictionResult{}, false
	}
	return models.PredictionResult{Label: *raw.Label, Score: *raw.Score}, true
}
