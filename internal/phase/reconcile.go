package phase

// Decision is the outcome of reconciling the current route against the
// derived phase. Mismatches always resolve to a redirect, never an error.
type Decision struct {
	Redirect bool
	Target   Phase
}

func stay() Decision              { return Decision{} }
func redirectTo(p Phase) Decision { return Decision{Redirect: true, Target: p} }

// maxPhaseDrift is the largest forward/backward phase-index gap tolerated
// before the client is pulled back to the derived phase.
const maxPhaseDrift = 2

// Reconcile applies the route tolerance policy, as an ordered rule list:
//
//  1. A bare or unknown segment redirects to the derived phase.
//  2. A segment matching the derived phase stays.
//  3. Sitting on the active route with no questions ready is unsafe; redirect.
//  4. Staying on results while the derived phase lags behind is a harmless
//     residual; stay.
//  5. A phase-index gap larger than maxPhaseDrift redirects.
//  6. Anything else is tolerated.
//
// Callers re-run this on back/forward navigation and on visibility regain.
func Reconcile(segment string, derived Phase, questionsReady bool) Decision {
	current, ok := FromSegment(segment)
	if !ok {
		return redirectTo(derived)
	}
	if current == derived {
		return stay()
	}
	if current == Active && !questionsReady {
		return redirectTo(derived)
	}
	if current == Results && Index(derived) < Index(Results) {
		return stay()
	}
	drift := Index(current) - Index(derived)
	if drift < 0 {
		drift = -drift
	}
	if drift > maxPhaseDrift {
		return redirectTo(derived)
	}
	return stay()
}
