package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/Sadiqib0/Citypulse/internal/models"
)

// minAnomalySample is the smallest window the detector will score;
// below it the sample is considered insufficient and no anomalies are
// reported.
const minAnomalySample = 10

// minPredictionSample is the smallest history the predictor accepts.
const minPredictionSample = 5

// scoreAnomalies flags readings whose z-score exceeds the threshold.
// With fewer than minAnomalySample readings, or a zero standard
// deviation, nothing is anomalous; both are defined results, not
// errors.
func scoreAnomalies(readings []models.SensorReading, threshold float64) []Anomaly {
	if len(readings) < minAnomalySample {
		return []Anomaly{}
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}
	mean := meanOf(values)
	std := sampleStd(values, mean)

	anomalies := []Anomaly{}
	for _, r := range readings {
		z := 0.0
		if std > 0 {
			z = math.Abs(r.Value-mean) / std
		}
		if z > threshold {
			anomalies = append(anomalies, Anomaly{
				Timestamp:     r.Timestamp,
				Value:         r.Value,
				ExpectedRange: [2]float64{mean - threshold*std, mean + threshold*std},
				ZScore:        z,
			})
		}
	}
	return anomalies
}

// buildPredictions derives one prediction per future hourly slot from
// the hour-of-day frequency of the historical events.
func buildPredictions(events []models.Event, eventType models.EventType, horizonHours int, now time.Time) []Prediction {
	if len(events) < minPredictionSample {
		return []Prediction{}
	}

	freq := hourHistogram(events)
	total := float64(len(events))

	predictions := make([]Prediction, 0, horizonHours)
	for offset := 0; offset < horizonHours; offset++ {
		slot := now.Add(time.Duration(offset) * time.Hour)
		count := freq[slot.Hour()]
		probability := float64(count) / total

		predictions = append(predictions, Prediction{
			PredictionType: string(eventType),
			Timestamp:      slot,
			PredictedValue: probability,
			Confidence:     math.Min(0.9, probability*1.2),
			Metadata: PredictionMetadata{
				HistoricalFrequency: count,
				Hour:                slot.Hour(),
			},
		})
	}
	return predictions
}

// hourHistogram counts events per hour of day of their creation time.
func hourHistogram(events []models.Event) map[int]int {
	hist := make(map[int]int)
	for _, e := range events {
		hist[e.CreatedAt.Hour()]++
	}
	return hist
}

// peakHours returns the top-n hours by event count. Ties break toward
// the earlier hour so the result is deterministic.
func peakHours(hist map[int]int, n int) []int {
	hours := make([]int, 0, len(hist))
	for h := range hist {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if hist[hours[i]] != hist[hours[j]] {
			return hist[hours[i]] > hist[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the n−1 sample standard deviation.
func sampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// metaFloat pulls a numeric metadata value, tolerating the int/float
// ambiguity of decoded JSON.
func metaFloat(meta map[string]interface{}, key string) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
