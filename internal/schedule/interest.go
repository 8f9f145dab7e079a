package schedule

// InterestStrategy adjusts an even principal split for an annual percentage
// rate. Implementations return one amount per input amount.
//
// No amortization formula is built in. Callers that track APR-bearing
// platforms plug in the formula their platform publishes.
type InterestStrategy interface {
	Apply(principal []int64, apr float64, intervalDays int) ([]int64, error)
}

// InterestFunc adapts a plain function to InterestStrategy.
type InterestFunc func(principal []int64, apr float64, intervalDays int) ([]int64, error)

// Apply calls f.
func (f InterestFunc) Apply(principal []int64, apr float64, intervalDays int) ([]int64, error) {
	return f(principal, apr, intervalDays)
}

// NoInterest leaves the principal split untouched.
type NoInterest struct{}

// Apply returns a copy of principal.
func (NoInterest) Apply(principal []int64, _ float64, _ int) ([]int64, error) {
	out := make([]int64, len(principal))
	copy(out, principal)
	return out, nil
}
