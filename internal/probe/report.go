package probe

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//nolint:gochecknoglobals // Global printer is idiomatic for x/text/message usage.
var printer = message.NewPrinter(language.English)

// EndpointResult summarizes one endpoint.
type EndpointResult struct {
	Name     string        `json:"name"`
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Count    int           `json:"count"`
	Failures int           `json:"failures"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	Max      time.Duration `json:"max"`
}

// Report is the outcome of a probe run.
type Report struct {
	Endpoints      []EndpointResult `json:"endpoints"`
	Requests       int              `json:"requests"`
	Failures       int              `json:"failures"`
	P95            time.Duration    `json:"p95"`
	Elapsed        time.Duration    `json:"elapsed"`
	P95Threshold   time.Duration    `json:"p95Threshold"`
	MaxFailureRate float64          `json:"maxFailureRate"`
}

// FailureRate is the share of failed requests.
func (r *Report) FailureRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Failures) / float64(r.Requests)
}

// Violations lists every threshold the run broke.
func (r *Report) Violations() []string {
	var out []string
	if rate := r.FailureRate(); rate >= r.MaxFailureRate {
		out = append(out, fmt.Sprintf("failure rate %.2f%% >= %.2f%%", rate*100, r.MaxFailureRate*100))
	}
	if r.P95 >= r.P95Threshold {
		out = append(out, fmt.Sprintf("overall p95 %s >= %s", r.P95, r.P95Threshold))
	}
	for _, e := range r.Endpoints {
		if e.P95 >= r.P95Threshold {
			out = append(out, fmt.Sprintf("%s p95 %s >= %s", e.Name, e.P95, r.P95Threshold))
		}
	}
	return out
}

// Passed reports whether every threshold held.
func (r *Report) Passed() bool {
	return len(r.Violations()) == 0
}

// Write renders the report as a table followed by the verdict.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tREQUESTS\tFAILED\tP50\tP95\tMAX")
	for _, e := range r.Endpoints {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, printer.Sprintf("%d", e.Count), printer.Sprintf("%d", e.Failures),
			ms(e.P50), ms(e.P95), ms(e.Max))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	printer.Fprintf(w, "%d requests in %s, %d failed (%.2f%%), p95 %s\n",
		r.Requests, r.Elapsed.Round(time.Millisecond), r.Failures, r.FailureRate()*100, ms(r.P95))

	if violations := r.Violations(); len(violations) > 0 {
		fmt.Fprintln(w, "FAIL")
		for _, v := range violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
		return nil
	}
	fmt.Fprintln(w, "PASS")
	return nil
}

func ms(d time.Duration) string {
	return printer.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}
