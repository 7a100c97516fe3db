package domain

import (
	"fmt"
	"strings"
	"time"
)

// Script is a load test definition: where to send traffic, how fast, and what
// each virtual user does.
type Script struct {
	Config    ScriptConfig `mapstructure:"config" json:"config"`
	Scenarios []Scenario   `mapstructure:"scenarios" json:"scenarios"`
}

// ScriptConfig holds the run-wide settings of a script.
type ScriptConfig struct {
	Target    string         `mapstructure:"target" json:"target"`
	Phases    []Phase        `mapstructure:"phases" json:"phases"`
	Variables map[string]any `mapstructure:"variables" json:"variables,omitempty"`
	Defaults  Defaults       `mapstructure:"defaults" json:"defaults"`
}

// Defaults are merged into every request of the script.
type Defaults struct {
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// Phase is a period of the run with a given VU arrival pattern.
type Phase struct {
	Name     string        `mapstructure:"name" json:"name,omitempty"`
	Duration time.Duration `mapstructure:"duration" json:"duration"`

	// VUs per second at phase start, ramped linearly to RampTo when set.
	ArrivalRate float64 `mapstructure:"arrival_rate" json:"arrival_rate,omitempty"`
	RampTo      float64 `mapstructure:"ramp_to" json:"ramp_to,omitempty"`

	// Fixed number of VUs spread evenly over Duration. Overrides ArrivalRate.
	ArrivalCount int  `mapstructure:"arrival_count" json:"arrival_count,omitempty"`
	Pause        bool `mapstructure:"pause" json:"pause,omitempty"`
}

// Scenario is one weighted flow a VU can be assigned.
type Scenario struct {
	Name           string   `mapstructure:"name" json:"name"`
	Weight         int      `mapstructure:"weight" json:"weight"`
	BeforeScenario []string `mapstructure:"before_scenario" json:"before_scenario,omitempty"`
	AfterScenario  []string `mapstructure:"after_scenario" json:"after_scenario,omitempty"`
	Flow           []Step   `mapstructure:"flow" json:"flow"`
}

// Step is a single flow entry. Exactly one of its fields is set.
type Step struct {
	Request *Request      `mapstructure:"request" json:"request,omitempty"`
	Think   time.Duration `mapstructure:"think" json:"think,omitempty"`
	Log     string        `mapstructure:"log" json:"log,omitempty"`
}

// Request describes an HTTP request template. String fields may contain
// {{ name }} placeholders resolved against the VU's session variables.
type Request struct {
	Method        string            `mapstructure:"method" json:"method"`
	URL           string            `mapstructure:"url" json:"url"`
	Headers       map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	Body          string            `mapstructure:"body" json:"body,omitempty"`
	JSON          any               `mapstructure:"json" json:"json,omitempty"`
	BeforeRequest []string          `mapstructure:"before_request" json:"before_request,omitempty"`
	AfterResponse []string          `mapstructure:"after_response" json:"after_response,omitempty"`
	ExpectStatus  int               `mapstructure:"expect_status" json:"expect_status,omitempty"`
}

// HookNames returns every hook name referenced anywhere in the script.
func (s *Script) HookNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(list []string) {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	for _, sc := range s.Scenarios {
		add(sc.BeforeScenario)
		add(sc.AfterScenario)
		for _, st := range sc.Flow {
			if st.Request != nil {
				add(st.Request.BeforeRequest)
				add(st.Request.AfterResponse)
			}
		}
	}
	return names
}

// TotalDuration is the sum of all phase durations.
func (s *Script) TotalDuration() time.Duration {
	var d time.Duration
	for _, p := range s.Config.Phases {
		d += p.Duration
	}
	return d
}

// Normalize fills defaults: weight 1, method GET.
func (s *Script) Normalize() {
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		if sc.Weight <= 0 {
			sc.Weight = 1
		}
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("scenario-%d", i+1)
		}
		for j := range sc.Flow {
			if r := sc.Flow[j].Request; r != nil {
				r.Method = strings.ToUpper(r.Method)
				if r.Method == "" {
					r.Method = "GET"
				}
			}
		}
	}
}

// Validate checks that the script can be executed.
func (s *Script) Validate() error {
	var errs []string

	if s.Config.Target == "" {
		errs = append(errs, "config.target is required")
	}
	if len(s.Config.Phases) == 0 {
		errs = append(errs, "config.phases must contain at least one phase")
	}
	for i, p := range s.Config.Phases {
		if p.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("phase %d: duration must be positive", i))
		}
		if p.ArrivalRate < 0 || p.RampTo < 0 || p.ArrivalCount < 0 {
			errs = append(errs, fmt.Sprintf("phase %d: arrival settings must not be negative", i))
		}
	}
	if len(s.Scenarios) == 0 {
		errs = append(errs, "scenarios must contain at least one scenario")
	}
	for i, sc := range s.Scenarios {
		if len(sc.Flow) == 0 {
			errs = append(errs, fmt.Sprintf("scenario %d (%s): flow is empty", i, sc.Name))
		}
		for j, st := range sc.Flow {
			if st.Request == nil && st.Think <= 0 && st.Log == "" {
				errs = append(errs, fmt.Sprintf("scenario %d (%s): step %d does nothing", i, sc.Name, j))
			}
			if st.Request != nil && st.Request.URL == "" {
				errs = append(errs, fmt.Sprintf("scenario %d (%s): step %d: request url is required", i, sc.Name, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidScript, strings.Join(errs, "\n  - "))
	}
	return nil
}
