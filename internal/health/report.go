package health

import "net/http"

// Report is the ordered output of one Checker call. Order follows probe
// order and carries no meaning.
type Report []CheckResult

// Healthy is false iff some critical dependency is down. An empty report is healthy.
func (r Report) Healthy() bool {
	for _, c := range r {
		if c.IsCritical && c.IsDown {
			return false
		}
	}
	return true
}

// StatusCode maps the aggregate to 200 or 503.
func (r Report) StatusCode() int {
	if r.Healthy() {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Down lists the names of down dependencies, critical or not.
func (r Report) Down() []string {
	var out []string
	for _, c := range r {
		if c.IsDown {
			out = append(out, c.DependencyName)
		}
	}
	return out
}
