package executor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"news-qa/internal/auth"
	"news-qa/internal/chain"
	"news-qa/internal/client"
	"news-qa/internal/config"
	"news-qa/internal/contract"
	"news-qa/internal/fixtures"
	"news-qa/internal/ir"
	"news-qa/internal/request"
	"news-qa/internal/session"
	"news-qa/internal/softassert"
)

// ---- Results model ----

type Outcome string

const (
	Passed Outcome = "passed"
	Failed Outcome = "failed"
	Fatal  Outcome = "fatal"
)

// State is a scenario lifecycle state. A scenario only ever moves forward
// through them in the order declared here.
type State string

const (
	StateInit          State = "init"
	StateAuthenticated State = "authenticated"
	StateExecuting     State = "executing"
	StateVerifying     State = "verifying"
	StateTearingDown   State = "tearingDown"
	StateDone          State = "done"
)

type SuiteResult struct {
	Passed     bool
	Scenarios  []ScenarioResult
	DurationMs float64
}

// Counts tallies scenario outcomes.
func (s *SuiteResult) Counts() (passed, failed, fatal int) {
	for _, sc := range s.Scenarios {
		switch sc.Outcome {
		case Passed:
			passed++
		case Failed:
			failed++
		case Fatal:
			fatal++
		}
	}
	return passed, failed, fatal
}

type ScenarioResult struct {
	Name        string
	Outcome     Outcome
	States      []State
	Steps       []StepResult
	Failures    []softassert.Failure
	Teardown    []chain.TeardownRecord
	TeardownRan bool
	DurationMs  float64

	// Err is the fatal error, or the aggregated assertion error of a failed scenario.
	Err error `json:"-"`
}

func (r ScenarioResult) Passed() bool { return r.Outcome == Passed }

type StepResult struct {
	Name       string
	Op         string
	Passed     bool
	StatusCode int
	Method     string
	URL        string
	RespBody   string
	DurationMs float64

	resp *client.Response
	vars map[string]string
	exp  []ir.Expectation
}

// ---- Runner ----

type Runner struct {
	cfg      *config.Config
	builder  *request.Builder
	client   *client.Client
	gateway  *auth.Gateway
	creators map[session.ResourceType]chain.Creator
	log      *zap.Logger

	contractV *contract.Validator
	coverage  *contract.Coverage

	parallel int
	failFast bool
}

func New(cfg *config.Config) *Runner {
	b := request.NewBuilder(nil)
	cl := client.New(cfg.Timeout)
	return &Runner{
		cfg:      cfg,
		builder:  b,
		client:   cl,
		gateway:  auth.NewGateway(b, cl),
		creators: fixtures.Creators(cfg.Fixtures),
		log:      zap.NewNop(),
	}
}

func (r *Runner) WithLogger(l *zap.Logger) *Runner {
	if l != nil {
		r.log = l
	}
	return r
}

func (r *Runner) WithClient(cl *client.Client) *Runner {
	r.client = cl
	r.gateway = auth.NewGateway(r.builder, cl)
	return r
}

func (r *Runner) WithCreators(c map[session.ResourceType]chain.Creator) *Runner {
	r.creators = c
	return r
}

func (r *Runner) WithContract(v *contract.Validator) *Runner {
	if r.coverage == nil {
		r.coverage = contract.NewCoverage()
	}
	r.contractV = v
	return r
}

func (r *Runner) WithParallel(n int) *Runner {
	if n < 1 {
		n = 1
	}
	r.parallel = n
	return r
}

func (r *Runner) WithFailFast(b bool) *Runner { r.failFast = b; return r }

// Coverage is nil unless a contract validator was attached.
func (r *Runner) Coverage() *contract.Coverage { return r.coverage }

// ---- Suite execution ----

func clone(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *Runner) RunSuite(ctx context.Context, suite *ir.TestSuite) (*SuiteResult, error) {
	if suite == nil {
		return nil, errors.New("nil suite")
	}

	startSuite := time.Now()
	res := &SuiteResult{Passed: true, Scenarios: make([]ScenarioResult, len(suite.Scenarios))}

	parallel := r.parallel
	if r.failFast {
		parallel = 1
	}
	if parallel < 1 {
		parallel = 1
	}
	r.log.Info("suite started",
		zap.String("suite", suite.Name),
		zap.Int("scenarios", len(suite.Scenarios)),
		zap.Int("parallel", parallel))

	if parallel == 1 {
		for i, sc := range suite.Scenarios {
			scRes := r.runScenario(ctx, suite, sc)
			if !scRes.Passed() {
				res.Passed = false
			}
			res.Scenarios[i] = scRes
			if r.failFast && !scRes.Passed() {
				res.Scenarios = res.Scenarios[:i+1]
				res.DurationMs = float64(time.Since(startSuite).Milliseconds())
				return res, nil
			}
		}
		res.DurationMs = float64(time.Since(startSuite).Milliseconds())
		return res, nil
	}

	type job struct {
		idx int
		sc  ir.Scenario
	}
	type result struct {
		idx int
		sc  ScenarioResult
	}

	jobs := make(chan job)
	results := make(chan result)

	for w := 0; w < parallel; w++ {
		go func() {
			for j := range jobs {
				results <- result{idx: j.idx, sc: r.runScenario(ctx, suite, j.sc)}
			}
		}()
	}
	go func() {
		for i, sc := range suite.Scenarios {
			jobs <- job{idx: i, sc: sc}
		}
		close(jobs)
	}()

	for collected := 0; collected < len(suite.Scenarios); collected++ {
		rx := <-results
		if !rx.sc.Passed() {
			res.Passed = false
		}
		res.Scenarios[rx.idx] = rx.sc
	}

	res.DurationMs = float64(time.Since(startSuite).Milliseconds())
	return res, nil
}

// teardownStatus picks the accepted delete codes: scenario, then suite, then config.
func (r *Runner) teardownStatus(suite *ir.TestSuite, sc ir.Scenario) []int {
	switch {
	case len(sc.TeardownStatus) > 0:
		return sc.TeardownStatus
	case len(suite.TeardownStatus) > 0:
		return suite.TeardownStatus
	case len(r.cfg.TeardownStatus) > 0:
		return r.cfg.TeardownStatus
	}
	return chain.DefaultTeardownStatus
}
