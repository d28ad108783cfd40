package prob

// BlendedRemovalRate blends the observed removal rate with a fixed empirical
// prior, weighted by how far into the review window the run is:
//
//	effective = frac*observed + (1-frac)*prior,  frac = elapsed/window
//
// Early in the review window the observed rate comes from one or two
// intervals and is often zero; the prior dominates until enough of the
// window has elapsed for the observation to be trusted. The prior is
// calibrated from out-of-band removal-request data, not derived here.
func BlendedRemovalRate(observed, prior, elapsedDays, reviewWindowDays float64) float64 {
	if reviewWindowDays <= 0 {
		return observed
	}
	frac := elapsedDays / reviewWindowDays
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac*observed + (1-frac)*prior
}
