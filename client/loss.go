package client

// Loss is the percentage of the attempted messages whose bytes never came
// back. received is converted to whole-or-partial messages of size bytes.
// Nothing received at all is always 100, even when attempted is 0.
func Loss(attempted int, received int64, size int) float64 {
	if received <= 0 || attempted <= 0 || size <= 0 {
		return 100
	}
	returned := float64(received) / float64(size)
	loss := 100 * (float64(attempted) - returned) / float64(attempted)
	return min(max(loss, 0), 100)
}
