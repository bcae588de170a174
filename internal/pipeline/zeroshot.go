package pipeline

import (
	"math"
	"sort"

	"gpuworker/pkg/types"
)

// LabelPrototype is a sentence whose embedding stands in for a label.
type LabelPrototype struct {
	Label string
	Text  string
}

// SentimentPrototypes are the default prototypes for the sentiment task.
var SentimentPrototypes = []LabelPrototype{
	{Label: "POSITIVE", Text: "This is a positive statement. I love it, it is wonderful and makes me happy."},
	{Label: "NEGATIVE", Text: "This is a negative statement. I hate it, it is awful and makes me unhappy."},
}

// zeroShotTemperature sharpens cosine similarities before the softmax;
// embedding similarities of unrelated sentences sit close together.
const zeroShotTemperature = 0.05

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// zeroShot scores vec against each prototype embedding and returns a
// softmax distribution over labels, highest first.
func zeroShot(vec []float32, protos [][]float32, labels []string, temperature float64) []types.Prediction {
	if len(protos) == 0 || len(protos) != len(labels) {
		return nil
	}
	if temperature <= 0 {
		temperature = zeroShotTemperature
	}
	logits := make([]float64, len(protos))
	maxLogit := math.Inf(-1)
	for i, p := range protos {
		logits[i] = cosine(vec, p) / temperature
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	var sum float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}
	out := make([]types.Prediction, len(labels))
	for i, l := range labels {
		out[i] = types.Prediction{Label: l, Score: logits[i] / sum}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
