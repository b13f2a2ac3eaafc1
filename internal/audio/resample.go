package audio

// Resample converts samples from one rate to another by linear interpolation.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		n = 1
	}
	out := make([]float64, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// PadOrTruncate returns exactly n samples, zero-padding at the end.
func PadOrTruncate(samples []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, samples)
	return out
}

// Rechannel returns a clip with exactly n channels. Going to mono averages,
// going up duplicates the first channel.
func Rechannel(c *Clip, n int) *Clip {
	if c.NumChannels() == n {
		return c
	}
	out := &Clip{SampleRate: c.SampleRate, BitDepth: c.BitDepth}
	if n == 1 {
		out.Channels = [][]float64{c.Mono()}
		return out
	}
	src := c.Channels
	if len(src) > n {
		src = src[:n]
	}
	out.Channels = make([][]float64, n)
	for i := range out.Channels {
		if i < len(src) {
			out.Channels[i] = src[i]
		} else {
			out.Channels[i] = src[0]
		}
	}
	return out
}

// Conform resamples, rechannels and pads/truncates a clip in one step.
func Conform(c *Clip, sampleRate, channels, frames int) *Clip {
	c = Rechannel(c, channels)
	out := &Clip{SampleRate: sampleRate, BitDepth: c.BitDepth, Channels: make([][]float64, channels)}
	for i, ch := range c.Channels {
		out.Channels[i] = PadOrTruncate(Resample(ch, c.SampleRate, sampleRate), frames)
	}
	return out
}
