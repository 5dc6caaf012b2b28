package classify

// Accuracy maps a quality loss to an accuracy percentage. The curve is
// monotonically decreasing and convex: small losses cost little, large
// losses cost disproportionately more, bottoming out at zero.
func Accuracy(lossCP int) float64 {
	if lossCP <= 0 {
		return 100
	}
	loss := float64(lossCP)
	penalty := loss/8 + loss*loss/800
	acc := 100 - penalty
	if acc < 0 {
		return 0
	}
	return acc
}
