package segmenter

// SilenceSampleRate is the rate audio is resampled to before silence
// detection. Fixed so identical inputs always produce identical split points
// regardless of the source's native rate.
const SilenceSampleRate = 22000

// SilenceSegment is a maximal range whose normalised amplitude stays below
// the threshold for at least the minimum silence duration.
type SilenceSegment struct {
	Start float64
	End   float64
}

// DetectSilence scans mono PCM samples for silent segments. Amplitudes are
// normalised against the loudest sample; a stream that is all zeros is
// treated as entirely silent. A silent run still open at the end of the
// samples is closed at totalDuration.
func DetectSilence(samples []int16, threshold, minSilenceDuration, totalDuration float64) []SilenceSegment {
	if len(samples) == 0 {
		return nil
	}

	var maxAmp float64
	for _, s := range samples {
		if a := absSample(s); a > maxAmp {
			maxAmp = a
		}
	}

	norm := 1.0
	if maxAmp > 0 {
		norm = maxAmp
	}

	var segments []SilenceSegment
	inSilence := false
	var silenceStart float64

	for i, s := range samples {
		t := float64(i) / SilenceSampleRate
		silent := absSample(s)/norm < threshold

		switch {
		case silent && !inSilence:
			inSilence = true
			silenceStart = t
		case !silent && inSilence:
			inSilence = false
			if t-silenceStart >= minSilenceDuration {
				segments = append(segments, SilenceSegment{Start: silenceStart, End: t})
			}
		}
	}

	if inSilence && totalDuration-silenceStart >= minSilenceDuration {
		segments = append(segments, SilenceSegment{Start: silenceStart, End: totalDuration})
	}

	return segments
}

// Midpoints returns the centre of each silent segment, the candidate split
// points for silence-based segmentation.
func Midpoints(segments []SilenceSegment) []float64 {
	points := make([]float64, 0, len(segments))
	for _, seg := range segments {
		points = append(points, (seg.Start+seg.End)/2)
	}
	return points
}

func absSample(s int16) float64 {
	v := float64(s)
	if v < 0 {
		return -v
	}
	return v
}
