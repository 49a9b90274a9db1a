// Copyright (C) 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gputime

import (
	"math"
	"sort"
)

// computeFrameMetrics computes average (mean of all), median, min, max and
// population standard deviation over samples.
func computeFrameMetrics(samples []float64) FrameMetrics {
	n := len(samples)
	if n == 0 {
		return FrameMetrics{}
	}

	sum := 0.0
	min, max := samples[0], samples[0]
	for _, v := range samples {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return FrameMetrics{
		Count:  n,
		Mean:   mean,
		Median: median,
		Min:    min,
		Max:    max,
		StdDev: math.Sqrt(variance),
	}
}
