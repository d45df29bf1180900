// Package trainset builds fixed-width training datasets from the long-format
// feature mart for the downstream model trainers. One vector per frame: five
// statistics by three axes, keyed by (session_id, device_id, frame_seq).
package trainset

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/monitoring"
)

// Dims is the width of a training vector: 5 statistics x 3 axes.
const Dims = 15

var statNames = []string{"rms", "peak", "mean_abs", "std", "crest_factor"}
var axisNames = []string{"x", "y", "z"}

// FeatureNames returns the column names of a training vector in order,
// statistic-major: rms_x, rms_y, rms_z, peak_x, ...
func FeatureNames() []string {
	names := make([]string, 0, Dims)
	for _, stat := range statNames {
		for _, axis := range axisNames {
			names = append(names, stat+"_"+axis)
		}
	}
	return names
}

// Vector is one frame's wide-format training example.
type Vector struct {
	SessionID int64
	DeviceID  string
	FrameSeq  int64
	Label     string
	Split     *string
	Features  [Dims]float64
}

type frameKey struct {
	sessionID int64
	deviceID  string
	frameSeq  int64
}

// Pivot groups long-format feature rows into wide vectors. Frames missing
// any of the 15 dimensions (an absent axis row or a nil statistic) are
// dropped: the trainers cannot impute.
func Pivot(rows []db.FeatureRow) []Vector {
	type partial struct {
		values [Dims]*float64
		label  *string
		split  *string
	}

	frames := make(map[frameKey]*partial)
	var order []frameKey

	axisIndex := map[string]int{"x": 0, "y": 1, "z": 2}

	for _, r := range rows {
		ai, ok := axisIndex[r.Axis]
		if !ok {
			continue
		}

		key := frameKey{r.SessionID, r.DeviceID, r.FrameSeq}
		p, ok := frames[key]
		if !ok {
			p = &partial{label: r.LabelType, split: r.DataSplit}
			frames[key] = p
			order = append(order, key)
		}

		for si, stat := range []*float64{r.RMS, r.Peak, r.MeanAbs, r.Std, r.CrestFactor} {
			p.values[si*3+ai] = stat
		}
	}

	vectors := make([]Vector, 0, len(order))
	dropped := 0
outer:
	for _, key := range order {
		p := frames[key]
		if p.label == nil {
			dropped++
			continue
		}

		v := Vector{
			SessionID: key.sessionID,
			DeviceID:  key.deviceID,
			FrameSeq:  key.frameSeq,
			Label:     *p.label,
			Split:     p.split,
		}
		for i, val := range p.values {
			if val == nil {
				dropped++
				continue outer
			}
			v.Features[i] = *val
		}
		vectors = append(vectors, v)
	}

	if dropped > 0 {
		monitoring.Logf("[trainset] dropped %d frames missing one or more of the %d dimensions", dropped, Dims)
	}

	return vectors
}

// Dataset is a train/val/test partition of vectors.
type Dataset struct {
	Train []Vector
	Val   []Vector
	Test  []Vector
}

// Split partitions vectors for training. When the data_split column is
// populated and yields non-empty train, val and test partitions it is used
// verbatim; otherwise the vectors are split 70/15/15 with per-label
// stratification using the given seed.
func Split(vectors []Vector, seed int64) (Dataset, error) {
	if len(vectors) == 0 {
		return Dataset{}, fmt.Errorf("no vectors to split")
	}

	if ds, ok := splitByColumn(vectors); ok {
		monitoring.Logf("[trainset] split by data_split column: train=%d val=%d test=%d",
			len(ds.Train), len(ds.Val), len(ds.Test))
		return ds, nil
	}

	ds := stratifiedSplit(vectors, seed)
	monitoring.Logf("[trainset] stratified random split: train=%d val=%d test=%d",
		len(ds.Train), len(ds.Val), len(ds.Test))
	return ds, nil
}

func splitByColumn(vectors []Vector) (Dataset, bool) {
	var ds Dataset
	populated := false
	for _, v := range vectors {
		if v.Split == nil {
			continue
		}
		populated = true
		switch *v.Split {
		case "train":
			ds.Train = append(ds.Train, v)
		case "val":
			ds.Val = append(ds.Val, v)
		case "test":
			ds.Test = append(ds.Test, v)
		}
	}

	if !populated || len(ds.Train) == 0 || len(ds.Val) == 0 || len(ds.Test) == 0 {
		return Dataset{}, false
	}
	return ds, true
}

func stratifiedSplit(vectors []Vector, seed int64) Dataset {
	byLabel := make(map[string][]int)
	for i, v := range vectors {
		byLabel[v.Label] = append(byLabel[v.Label], i)
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	rng := rand.New(rand.NewSource(seed))

	var ds Dataset
	for _, label := range labels {
		idx := byLabel[label]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTrain := int(float64(len(idx)) * 0.7)
		nVal := int(float64(len(idx)) * 0.15)

		for i, j := range idx {
			switch {
			case i < nTrain:
				ds.Train = append(ds.Train, vectors[j])
			case i < nTrain+nVal:
				ds.Val = append(ds.Val, vectors[j])
			default:
				ds.Test = append(ds.Test, vectors[j])
			}
		}
	}

	return ds
}

// SessionIDs returns the distinct session ids contributing vectors,
// ascending. Used to stamp train_done_at after a successful export.
func SessionIDs(vectors []Vector) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, v := range vectors {
		if !seen[v.SessionID] {
			seen[v.SessionID] = true
			ids = append(ids, v.SessionID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClassLabels returns the sorted distinct labels present in the vectors.
func ClassLabels(vectors []Vector) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, v := range vectors {
		if !seen[v.Label] {
			seen[v.Label] = true
			labels = append(labels, v.Label)
		}
	}
	sort.Strings(labels)
	return labels
}
