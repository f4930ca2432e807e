package indicators

// trendingBars returns steadily rising bars: close climbs by 0.5 per bar with
// a constant 4-point high/low range around it
func trendingBars(count int) Series {
	s := Series{
		Open:   make([]float64, count),
		High:   make([]float64, count),
		Low:    make([]float64, count),
		Close:  make([]float64, count),
		Volume: make([]float64, count),
	}
	for i := 0; i < count; i++ {
		base := 100.0 + float64(i)*0.5
		s.Open[i] = base - 0.25
		s.High[i] = base + 2.0
		s.Low[i] = base - 2.0
		s.Close[i] = base
		s.Volume[i] = 1000 + float64(i)
	}
	return s
}

func sequence(from, to float64) []float64 {
	var out []float64
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}
